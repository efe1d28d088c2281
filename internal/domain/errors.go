package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	// ErrUpdateRejected covers every update failure; the cause is not exposed.
	ErrUpdateRejected = errors.New("ledger: update rejected")
	// ErrConfigRejected covers every configuration failure.
	ErrConfigRejected = errors.New("ledger: configuration rejected")
)

// Code is a stable, numeric submission rejection. Values are part of the wire contract.
type Code uint32

const (
	CodeNotAuthorized       Code = 100
	CodeInvalidLocation     Code = 101
	CodeInvalidReviewText   Code = 102
	CodeInvalidRating       Code = 103
	CodeInvalidTimestamp    Code = 104
	CodeReviewAlreadyExists Code = 105
	CodeUserNotFound        Code = 106
	CodeLocationNotFound    Code = 107
	CodeInvalidHash         Code = 108 // reserved
	CodeCooldownActive      Code = 109 // reserved
	CodeInvalidReviewID     Code = 110 // reserved
)

var codeNames = map[Code]string{
	CodeNotAuthorized:       "not authorized",
	CodeInvalidLocation:     "invalid location",
	CodeInvalidReviewText:   "invalid review text",
	CodeInvalidRating:       "invalid rating",
	CodeInvalidTimestamp:    "invalid timestamp",
	CodeReviewAlreadyExists: "review already exists",
	CodeUserNotFound:        "user not found",
	CodeLocationNotFound:    "location not found",
	CodeInvalidHash:         "invalid hash",
	CodeCooldownActive:      "cooldown active",
	CodeInvalidReviewID:     "invalid review id",
}

// Codes returns the closed set of rejection codes in ascending order.
func Codes() []Code {
	out := make([]Code, 0, len(codeNames))
	for c := CodeNotAuthorized; c <= CodeInvalidReviewID; c++ {
		out = append(out, c)
	}
	return out
}

func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

func (c Code) Error() string {
	if n, ok := codeNames[c]; ok {
		return fmt.Sprintf("ledger: %s (%d)", n, uint32(c))
	}
	return fmt.Sprintf("ledger: unknown error (%d)", uint32(c))
}

// CodeOf extracts a rejection code from err.
func CodeOf(err error) (Code, bool) {
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return 0, false
}

// IsRejection reports whether err is a ledger decision rather than an infrastructure failure.
func IsRejection(err error) bool {
	if _, ok := CodeOf(err); ok {
		return true
	}
	return errors.Is(err, ErrUpdateRejected) || errors.Is(err, ErrConfigRejected)
}
