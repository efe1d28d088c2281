package domain

import "time"

type EventKind string

const (
	EventAuthoritySet  EventKind = "authority_set"
	EventCooldownSet   EventKind = "cooldown_set"
	EventReviewCreated EventKind = "review_created"
	EventReviewUpdated EventKind = "review_updated"
)

// LedgerEvent is the audit record of one committed transition.
type LedgerEvent struct {
	ID          string
	Kind        EventKind
	Actor       Identity
	ReviewID    *uint64
	LocationID  *uint64
	Fingerprint *Fingerprint
	Value       *string // authority or cooldown, for config events
	Height      int64
	RecordedAt  time.Time
}

// Registry entries as synced from the external directory service.

type RegisteredUser struct {
	Identity Identity
	Name     *string
	RawJSON  []byte // full directory payload
}

type RegisteredLocation struct {
	ID      uint64
	Name    *string
	City    *string
	Country *string
	Lat     *float64
	Lon     *float64
	RawJSON []byte
}
