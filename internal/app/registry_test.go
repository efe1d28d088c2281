package app_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_ledger/internal/app"
	"review_ledger/internal/domain"
)

type fakeDirectory struct {
	pages     map[int][]map[string]any
	last      int
	locations map[uint64]map[string]any
	usersErr  error
	locErr    error
}

func (d *fakeDirectory) GetUsers(ctx context.Context, page int) ([]map[string]any, bool, error) {
	if d.usersErr != nil {
		return nil, false, d.usersErr
	}
	return d.pages[page], page < d.last, nil
}

func (d *fakeDirectory) GetLocation(ctx context.Context, id uint64) (map[string]any, error) {
	if d.locErr != nil {
		return nil, d.locErr
	}
	p, ok := d.locations[id]
	if !ok {
		return nil, fmt.Errorf("location %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

type miss struct {
	kind, ref string
	status    int
}

type fakeRegistryWriter struct {
	users     map[domain.Identity]domain.RegisteredUser
	locations map[uint64]domain.RegisteredLocation
	removed   []uint64
	gone      []domain.Identity
	misses    []miss
}

func newRegistryWriter() *fakeRegistryWriter {
	return &fakeRegistryWriter{
		users:     map[domain.Identity]domain.RegisteredUser{},
		locations: map[uint64]domain.RegisteredLocation{},
	}
}

func (w *fakeRegistryWriter) UpsertUsers(ctx context.Context, us []domain.RegisteredUser) error {
	for _, u := range us {
		w.users[u.Identity] = u
	}
	return nil
}
func (w *fakeRegistryWriter) RemoveUsers(ctx context.Context, ids []domain.Identity) error {
	for _, id := range ids {
		delete(w.users, id)
	}
	w.gone = append(w.gone, ids...)
	return nil
}
func (w *fakeRegistryWriter) UpsertLocation(ctx context.Context, l domain.RegisteredLocation) error {
	w.locations[l.ID] = l
	return nil
}
func (w *fakeRegistryWriter) RemoveLocation(ctx context.Context, id uint64) error {
	delete(w.locations, id)
	w.removed = append(w.removed, id)
	return nil
}
func (w *fakeRegistryWriter) LogMiss(ctx context.Context, kind, ref string, status int, reason string) error {
	w.misses = append(w.misses, miss{kind: kind, ref: ref, status: status})
	return nil
}

func TestSyncUsers_PagesAndFilters(t *testing.T) {
	dir := &fakeDirectory{
		last: 2,
		pages: map[int][]map[string]any{
			1: {
				{"principal": "ST1ALICE", "display_name": "Alice"},
				{"address": "ST2BOB", "status": "suspended"},
				{"name": "no identity"},
			},
			2: {
				{"stx_address": string(domain.BurnIdentity)},
				{"wallet": "ST4CAROL", "profile": map[string]any{"name": "Carol"}, "is_active": true},
			},
		},
	}
	w := newRegistryWriter()
	n, err := app.NewRegistrySyncService(dir, w).SyncUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Contains(t, w.users, domain.Identity("ST1ALICE"))
	require.NotNil(t, w.users["ST1ALICE"].Name)
	assert.Equal(t, "Alice", *w.users["ST1ALICE"].Name)
	assert.Equal(t, "Carol", *w.users["ST4CAROL"].Name)
	assert.NotContains(t, w.users, domain.Identity("ST2BOB"))
	assert.NotContains(t, w.users, domain.BurnIdentity)
	assert.Equal(t, []domain.Identity{"ST2BOB"}, w.gone)
}

func TestSyncUsers_DeactivatedUserIsRemoved(t *testing.T) {
	w := newRegistryWriter()
	s := app.NewRegistrySyncService(&fakeDirectory{last: 1, pages: map[int][]map[string]any{
		1: {{"principal": "ST1ALICE"}, {"principal": "ST2BOB"}},
	}}, w)
	_, err := s.SyncUsers(context.Background())
	require.NoError(t, err)
	require.Contains(t, w.users, domain.Identity("ST2BOB"))

	s = app.NewRegistrySyncService(&fakeDirectory{last: 1, pages: map[int][]map[string]any{
		1: {{"principal": "ST1ALICE"}, {"principal": "ST2BOB", "is_active": false}},
	}}, w)
	n, err := s.SyncUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, w.users, domain.Identity("ST1ALICE"))
	assert.NotContains(t, w.users, domain.Identity("ST2BOB"))
}

func TestSyncUsers_ForbiddenIsLoggedNotFailed(t *testing.T) {
	dir := &fakeDirectory{usersErr: fmt.Errorf("users: %w", domain.ErrForbidden)}
	w := newRegistryWriter()
	n, err := app.NewRegistrySyncService(dir, w).SyncUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, w.misses, 1)
	assert.Equal(t, miss{kind: "users", ref: "1", status: http.StatusForbidden}, w.misses[0])
}

func TestSyncUsers_TransportErrorBubbles(t *testing.T) {
	boom := errors.New("connection reset")
	dir := &fakeDirectory{usersErr: boom}
	_, err := app.NewRegistrySyncService(dir, newRegistryWriter()).SyncUsers(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSyncLocation(t *testing.T) {
	dir := &fakeDirectory{locations: map[uint64]map[string]any{
		7: {"id": float64(7), "title": "Blue Bottle", "address": map[string]any{"city": "Oakland", "country": "US"}, "lat": "37,8", "lng": -122.27},
		8: {"location_id": "8", "name": "Closed Diner", "status": "closed"},
		9: {"id": float64(10), "name": "Wrong one"},
	}}
	w := newRegistryWriter()
	s := app.NewRegistrySyncService(dir, w)
	ctx := context.Background()

	require.NoError(t, s.SyncLocation(ctx, 7))
	loc := w.locations[7]
	assert.Equal(t, "Blue Bottle", *loc.Name)
	assert.Equal(t, "Oakland", *loc.City)
	assert.Equal(t, "US", *loc.Country)
	assert.InDelta(t, 37.8, *loc.Lat, 1e-9)
	assert.InDelta(t, -122.27, *loc.Lon, 1e-9)
	assert.NotEmpty(t, loc.RawJSON)

	w.locations[8] = domain.RegisteredLocation{ID: 8}
	require.NoError(t, s.SyncLocation(ctx, 8))
	assert.NotContains(t, w.locations, uint64(8))
	assert.Contains(t, w.misses, miss{kind: "location", ref: "8", status: http.StatusGone})

	require.NoError(t, s.SyncLocation(ctx, 404))
	assert.Contains(t, w.removed, uint64(404))
	assert.Contains(t, w.misses, miss{kind: "location", ref: "404", status: http.StatusNotFound})

	assert.Error(t, s.SyncLocation(ctx, 9))
	assert.NotContains(t, w.locations, uint64(9))
}
