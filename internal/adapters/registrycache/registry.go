// Package registrycache keeps recent registry answers in process so the
// submission path does not hit MySQL for every membership check.
package registrycache

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"review_ledger/internal/adapters/observability"
	"review_ledger/internal/domain"
)

// Registry caches both positive and negative answers for ttl.
type Registry struct {
	next  domain.Registry
	cache *cache.Cache
}

func New(next domain.Registry, ttl time.Duration) *Registry {
	return &Registry{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (r *Registry) HasUser(ctx context.Context, id domain.Identity) (bool, error) {
	return r.lookup("user:"+string(id), func() (bool, error) { return r.next.HasUser(ctx, id) })
}

func (r *Registry) HasLocation(ctx context.Context, id uint64) (bool, error) {
	return r.lookup("location:"+strconv.FormatUint(id, 10), func() (bool, error) { return r.next.HasLocation(ctx, id) })
}

// Flush drops every cached answer.
func (r *Registry) Flush() { r.cache.Flush() }

func (r *Registry) lookup(key string, load func() (bool, error)) (bool, error) {
	if v, ok := r.cache.Get(key); ok {
		observability.ObserveCache("registry", "hit")
		return v.(bool), nil
	}
	observability.ObserveCache("registry", "miss")
	ok, err := load()
	if err != nil {
		return false, err
	}
	r.cache.SetDefault(key, ok)
	return ok, nil
}
