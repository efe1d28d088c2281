package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Identity is an opaque, already-authenticated caller token.
type Identity string

// BurnIdentity is the reserved null principal; it can never become the authority.
const BurnIdentity Identity = "SP000000000000000000002Q6VF78"

const (
	MaxReviewText         = 500
	MinRating             = 1
	MaxRating             = 5
	DefaultCooldownPeriod = 144
)

// Fingerprint is the SHA-256 digest of a review's text.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

func (f Fingerprint) MarshalJSON() ([]byte, error) { return json.Marshal(f.String()) }

func (f *Fingerprint) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return f.UnmarshalText([]byte(s))
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(raw) != len(f) {
		return fmt.Errorf("fingerprint: want %d bytes, got %d", len(f), len(raw))
	}
	copy(f[:], raw)
	return nil
}

type Review struct {
	ID          uint64      `json:"id"`
	Author      Identity    `json:"author"`
	LocationID  uint64      `json:"location_id"`
	Text        string      `json:"text"`
	Rating      uint32      `json:"rating"`
	Timestamp   int64       `json:"timestamp"` // logical time of the last write
	Fingerprint Fingerprint `json:"fingerprint"`
	IsActive    bool        `json:"is_active"`
}

// UserReview is the (author, location) uniqueness index entry.
type UserReview struct {
	ReviewID      uint64 `json:"review_id"`
	LastSubmitted int64  `json:"last_submitted"`
}

type UserReviewKey struct {
	Author     Identity
	LocationID uint64
}

func (k UserReviewKey) String() string { return fmt.Sprintf("%s-%d", k.Author, k.LocationID) }

type Config struct {
	CooldownPeriod int64     `json:"cooldown_period"`
	Authority      *Identity `json:"authority,omitempty"`
}

// LedgerState is everything the ledger core owns. Registries are not part of it.
type LedgerState struct {
	Counter     uint64
	Config      Config
	Reviews     map[uint64]Review
	UserReviews map[UserReviewKey]UserReview
}

func NewLedgerState() LedgerState {
	return LedgerState{
		Config:      Config{CooldownPeriod: DefaultCooldownPeriod},
		Reviews:     map[uint64]Review{},
		UserReviews: map[UserReviewKey]UserReview{},
	}
}
