package domain

import "context"

// LedgerStore persists committed ledger transitions. Each call is atomic.
type LedgerStore interface {
	// Write paths
	InsertReview(ctx context.Context, rv Review, idx UserReview, ev LedgerEvent) error
	UpdateReview(ctx context.Context, rv Review, idx UserReview, ev LedgerEvent) error
	SaveConfig(ctx context.Context, c Config, ev LedgerEvent) error

	// Load reads the full state, used once at boot.
	Load(ctx context.Context) (LedgerState, error)
}

// ReviewReader serves point lookups; absent entries return ErrNotFound.
type ReviewReader interface {
	GetReview(ctx context.Context, id uint64) (Review, error)
	GetUserReview(ctx context.Context, author Identity, locationID uint64) (UserReview, error)
	GetReviewCount(ctx context.Context) (uint64, error)
}

// Registry answers membership questions for users and locations.
type Registry interface {
	HasUser(ctx context.Context, id Identity) (bool, error)
	HasLocation(ctx context.Context, id uint64) (bool, error)
}

type RegistryWriter interface {
	UpsertUsers(ctx context.Context, us []RegisteredUser) error
	RemoveUsers(ctx context.Context, ids []Identity) error
	UpsertLocation(ctx context.Context, l RegisteredLocation) error
	RemoveLocation(ctx context.Context, id uint64) error
	LogMiss(ctx context.Context, kind string, ref string, status int, reason string) error
}

// Clock supplies the current logical time (monotone, host-advanced).
type Clock interface {
	Now() int64
}

type DirectoryClient interface {
	GetUsers(ctx context.Context, page int) ([]map[string]any, bool, error)
	GetLocation(ctx context.Context, id uint64) (map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
