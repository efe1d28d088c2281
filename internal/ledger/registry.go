package ledger

import (
	"context"

	"review_ledger/internal/domain"
)

// MapRegistry is an in-memory, pre-populated registry.
type MapRegistry struct {
	Users     map[domain.Identity]bool
	Locations map[uint64]bool
}

func NewMapRegistry() *MapRegistry {
	return &MapRegistry{Users: map[domain.Identity]bool{}, Locations: map[uint64]bool{}}
}

func (m *MapRegistry) HasUser(_ context.Context, id domain.Identity) (bool, error) {
	return m.Users[id], nil
}

func (m *MapRegistry) HasLocation(_ context.Context, id uint64) (bool, error) {
	return m.Locations[id], nil
}
