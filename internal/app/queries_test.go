package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"review_ledger/internal/app"
	"review_ledger/internal/domain"
)

// ---- fakes ----

type fakeReader struct {
	rv    domain.Review
	ur    domain.UserReview
	count uint64
	calls int
}

func (f *fakeReader) GetReview(ctx context.Context, id uint64) (domain.Review, error) {
	f.calls++
	if id != f.rv.ID {
		return domain.Review{}, domain.ErrNotFound
	}
	return f.rv, nil
}
func (f *fakeReader) GetUserReview(ctx context.Context, author domain.Identity, loc uint64) (domain.UserReview, error) {
	f.calls++
	if author != f.rv.Author || loc != f.rv.LocationID {
		return domain.UserReview{}, domain.ErrNotFound
	}
	return f.ur, nil
}
func (f *fakeReader) GetReviewCount(ctx context.Context) (uint64, error) {
	f.calls++
	return f.count, nil
}

type fakeCache struct {
	store  map[string]any
	dels   []string
	setErr error
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.Review:
		*d = v.(domain.Review)
	case *domain.UserReview:
		*d = v.(domain.UserReview)
	case *uint64:
		*d = v.(uint64)
	}
	return true, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.setErr != nil {
		return c.setErr
	}
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.store, key)
	return nil
}

// ---- tests ----

func TestGetReview_CacheMissThenHit(t *testing.T) {
	reader := &fakeReader{
		rv: domain.Review{ID: 0, Author: "ST1TEST", LocationID: 1, Text: "Great place!", Rating: 4, IsActive: true},
	}
	cache := &fakeCache{}
	q := app.NewQueryService(reader, app.NewViewCache(cache, 10*time.Minute))

	// Miss (first time, populates cache)
	rv, err := q.GetReview(context.Background(), 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if rv.Text != "Great place!" || rv.Rating != 4 {
		t.Fatalf("unexpected review: %+v", rv)
	}

	// Mutate reader to ensure second read indeed comes from cache
	reader.rv.Text = "SHOULD NOT SEE THIS"

	// Hit (served from cache)
	rv2, err := q.GetReview(context.Background(), 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if rv2.Text != "Great place!" {
		t.Fatalf("expected cached text, got %s", rv2.Text)
	}
	if reader.calls != 1 {
		t.Fatalf("expected one reader call, got %d", reader.calls)
	}
}

func TestGetReview_NotFoundIsNotCached(t *testing.T) {
	reader := &fakeReader{rv: domain.Review{ID: 0}}
	cache := &fakeCache{}
	q := app.NewQueryService(reader, app.NewViewCache(cache, time.Minute))

	_, err := q.GetReview(context.Background(), 7)
	if !errors.Is(err, domain.ErrNotFound) || !app.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(cache.store) != 0 {
		t.Fatalf("absent review must not be cached: %+v", cache.store)
	}
}

func TestGetUserReviewAndCount_Cache(t *testing.T) {
	reader := &fakeReader{
		rv:    domain.Review{ID: 0, Author: "ST1TEST", LocationID: 1},
		ur:    domain.UserReview{ReviewID: 0, LastSubmitted: 12},
		count: 1,
	}
	cache := &fakeCache{}
	q := app.NewQueryService(reader, app.NewViewCache(cache, time.Minute))
	ctx := context.Background()

	ur, err := q.GetUserReview(ctx, "ST1TEST", 1)
	if err != nil || ur.LastSubmitted != 12 {
		t.Fatalf("GetUserReview: %+v %v", ur, err)
	}
	if _, ok := cache.store["user_review:ST1TEST-1"]; !ok {
		t.Fatalf("expected user review cached, got keys %v", cache.store)
	}

	n, err := q.GetReviewCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("GetReviewCount: %d %v", n, err)
	}
	reader.count = 5
	n, _ = q.GetReviewCount(ctx)
	if n != 1 {
		t.Fatalf("expected cached count 1, got %d", n)
	}
}
