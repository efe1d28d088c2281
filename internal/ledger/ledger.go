// Package ledger is the review state machine: ordered validation gates for
// submissions, updates and configuration, and the state they commit to.
//
// Every mutating operation is split in two. Plan* runs the gates against the
// current state and returns the effect without touching anything; Apply*
// commits a planned effect. Hosts that persist state call Plan, write the
// effect durably, then Apply, so a failed write leaves the ledger unchanged.
// The one-shot helpers (SubmitReview, UpdateReview, ...) do both.
//
// A Ledger is not safe for concurrent use; callers serialise requests.
package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"unicode/utf8"

	"review_ledger/internal/domain"
)

// Env carries the per-request facts supplied by the host.
type Env struct {
	Caller domain.Identity
	Now    int64
}

type Ledger struct {
	state domain.LedgerState
	reg   domain.Registry
}

func New(reg domain.Registry) *Ledger {
	return &Ledger{state: domain.NewLedgerState(), reg: reg}
}

// Restore builds a ledger over previously persisted state after checking its invariants.
func Restore(reg domain.Registry, st domain.LedgerState) (*Ledger, error) {
	if st.Reviews == nil {
		st.Reviews = map[uint64]domain.Review{}
	}
	if st.UserReviews == nil {
		st.UserReviews = map[domain.UserReviewKey]domain.UserReview{}
	}
	if err := Verify(st); err != nil {
		return nil, err
	}
	return &Ledger{state: st, reg: reg}, nil
}

// Submission is a review creation that passed every gate.
type Submission struct {
	Review domain.Review
	Key    domain.UserReviewKey
	Index  domain.UserReview
}

// Update is a review rewrite that passed every check.
type Update struct {
	Review domain.Review
	Key    domain.UserReviewKey
	Index  domain.UserReview
}

func Fingerprint(text string) domain.Fingerprint { return sha256.Sum256([]byte(text)) }

func validText(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n <= domain.MaxReviewText && utf8.ValidString(s)
}

func validRating(r uint32) bool { return r >= domain.MinRating && r <= domain.MaxRating }

/********** configuration **********/

func (l *Ledger) PlanAuthority(candidate domain.Identity) (domain.Config, error) {
	if candidate == domain.BurnIdentity || candidate == "" {
		return domain.Config{}, domain.ErrConfigRejected
	}
	if l.state.Config.Authority != nil {
		return domain.Config{}, domain.ErrConfigRejected
	}
	c := l.Config()
	c.Authority = &candidate
	return c, nil
}

// PlanCooldown checks authorization before the value so an unauthorized
// caller cannot learn whether a period would be accepted.
func (l *Ledger) PlanCooldown(period int64) (domain.Config, error) {
	if l.state.Config.Authority == nil {
		return domain.Config{}, domain.ErrConfigRejected
	}
	if period <= 0 {
		return domain.Config{}, domain.ErrConfigRejected
	}
	c := l.Config()
	c.CooldownPeriod = period
	return c, nil
}

func (l *Ledger) ApplyConfig(c domain.Config) {
	if c.Authority != nil {
		a := *c.Authority
		c.Authority = &a
	}
	l.state.Config = c
}

func (l *Ledger) SetAuthorityContract(candidate domain.Identity) error {
	c, err := l.PlanAuthority(candidate)
	if err != nil {
		return err
	}
	l.ApplyConfig(c)
	return nil
}

func (l *Ledger) SetCooldownPeriod(period int64) error {
	c, err := l.PlanCooldown(period)
	if err != nil {
		return err
	}
	l.ApplyConfig(c)
	return nil
}

/********** submissions **********/

// PlanSubmit runs the submission gates in contract order; the first failure wins.
// Registry lookup failures are returned wrapped and are not rejections.
func (l *Ledger) PlanSubmit(ctx context.Context, env Env, locationID uint64, text string, rating uint32) (Submission, error) {
	if locationID == 0 {
		return Submission{}, domain.CodeInvalidLocation
	}
	if !validText(text) {
		return Submission{}, domain.CodeInvalidReviewText
	}
	if !validRating(rating) {
		return Submission{}, domain.CodeInvalidRating
	}
	if env.Now < 0 {
		return Submission{}, domain.CodeInvalidTimestamp
	}
	ok, err := l.reg.HasUser(ctx, env.Caller)
	if err != nil {
		return Submission{}, fmt.Errorf("ledger: user registry: %w", err)
	}
	if !ok {
		return Submission{}, domain.CodeUserNotFound
	}
	ok, err = l.reg.HasLocation(ctx, locationID)
	if err != nil {
		return Submission{}, fmt.Errorf("ledger: location registry: %w", err)
	}
	if !ok {
		return Submission{}, domain.CodeLocationNotFound
	}
	key := domain.UserReviewKey{Author: env.Caller, LocationID: locationID}
	if _, exists := l.state.UserReviews[key]; exists {
		return Submission{}, domain.CodeReviewAlreadyExists
	}
	if l.state.Config.Authority == nil {
		return Submission{}, domain.CodeNotAuthorized
	}

	id := l.state.Counter
	return Submission{
		Review: domain.Review{
			ID:          id,
			Author:      env.Caller,
			LocationID:  locationID,
			Text:        text,
			Rating:      rating,
			Timestamp:   env.Now,
			Fingerprint: Fingerprint(text),
			IsActive:    true,
		},
		Key:   key,
		Index: domain.UserReview{ReviewID: id, LastSubmitted: env.Now},
	}, nil
}

// ApplySubmit commits a planned submission. It panics if the plan is stale,
// which only happens when callers interleave requests.
func (l *Ledger) ApplySubmit(s Submission) {
	if s.Review.ID != l.state.Counter {
		panic(fmt.Sprintf("ledger: stale submission %d, counter at %d", s.Review.ID, l.state.Counter))
	}
	l.state.Reviews[s.Review.ID] = s.Review
	l.state.UserReviews[s.Key] = s.Index
	l.state.Counter++
}

func (l *Ledger) SubmitReview(ctx context.Context, env Env, locationID uint64, text string, rating uint32) (uint64, error) {
	s, err := l.PlanSubmit(ctx, env, locationID, text, rating)
	if err != nil {
		return 0, err
	}
	l.ApplySubmit(s)
	return s.Review.ID, nil
}

/********** updates **********/

func (l *Ledger) PlanUpdate(env Env, reviewID uint64, text string, rating uint32) (Update, error) {
	cur, ok := l.state.Reviews[reviewID]
	if !ok || cur.Author != env.Caller || !validText(text) || !validRating(rating) {
		return Update{}, domain.ErrUpdateRejected
	}
	next := cur
	next.Text = text
	next.Rating = rating
	next.Timestamp = env.Now
	next.Fingerprint = Fingerprint(text)
	next.IsActive = true
	return Update{
		Review: next,
		Key:    domain.UserReviewKey{Author: cur.Author, LocationID: cur.LocationID},
		Index:  domain.UserReview{ReviewID: reviewID, LastSubmitted: env.Now},
	}, nil
}

func (l *Ledger) ApplyUpdate(u Update) {
	l.state.Reviews[u.Review.ID] = u.Review
	l.state.UserReviews[u.Key] = u.Index
}

func (l *Ledger) UpdateReview(env Env, reviewID uint64, text string, rating uint32) error {
	u, err := l.PlanUpdate(env, reviewID, text, rating)
	if err != nil {
		return err
	}
	l.ApplyUpdate(u)
	return nil
}

/********** reads **********/

func (l *Ledger) Review(id uint64) (domain.Review, bool) {
	rv, ok := l.state.Reviews[id]
	return rv, ok
}

func (l *Ledger) UserReview(author domain.Identity, locationID uint64) (domain.UserReview, bool) {
	ur, ok := l.state.UserReviews[domain.UserReviewKey{Author: author, LocationID: locationID}]
	return ur, ok
}

func (l *Ledger) ReviewCount() uint64 { return l.state.Counter }

func (l *Ledger) Config() domain.Config {
	c := l.state.Config
	if c.Authority != nil {
		a := *c.Authority
		c.Authority = &a
	}
	return c
}
