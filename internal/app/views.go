package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"review_ledger/internal/domain"
)

// ViewCache is the read-through cache shared by LedgerService and
// QueryService. Committed transitions publish their fresh values into it;
// a read-through fill that started before a publish is dropped instead of
// written, so an older read can never overwrite a newer entry.
type ViewCache struct {
	c   domain.Cache
	ttl time.Duration

	mu  sync.Mutex
	gen uint64
}

func NewViewCache(c domain.Cache, ttl time.Duration) *ViewCache {
	return &ViewCache{c: c, ttl: ttl}
}

type view struct {
	key string
	v   any
}

func (vc *ViewCache) ttlSec() int { return int(vc.ttl.Seconds()) }

func (vc *ViewCache) generation() uint64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.gen
}

// fill writes v under key unless a publish happened since gen was taken.
func (vc *ViewCache) fill(ctx context.Context, gen uint64, key string, v any) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.gen != gen {
		return
	}
	if err := vc.c.Set(ctx, key, v, vc.ttlSec()); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache fill failed")
	}
}

// publish overwrites each key with its committed value. When the write fails
// the key is dropped; when that fails too the entry may serve stale data
// until it expires, and is logged.
func (vc *ViewCache) publish(ctx context.Context, views ...view) {
	if vc == nil {
		return
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.gen++
	for _, w := range views {
		err := vc.c.Set(ctx, w.key, w.v, vc.ttlSec())
		if err == nil {
			continue
		}
		if derr := vc.c.Del(ctx, w.key); derr != nil {
			log.Error().Err(derr).AnErr("set_err", err).Str("key", w.key).Dur("ttl", vc.ttl).Msg("cache entry may be stale")
			continue
		}
		log.Warn().Err(err).Str("key", w.key).Msg("cache publish failed, entry dropped")
	}
}

// readThrough serves key from the cache, falling back to load and filling
// the cache with its result. Errors, including ErrNotFound, are never cached.
func readThrough[T any](ctx context.Context, vc *ViewCache, key string, load func() (T, error)) (T, error) {
	if vc == nil {
		return load()
	}
	var out T
	if ok, _ := vc.c.Get(ctx, key, &out); ok {
		return out, nil
	}
	gen := vc.generation()
	out, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	vc.fill(ctx, gen, key, out)
	return out, nil
}
