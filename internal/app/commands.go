package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"review_ledger/internal/adapters/observability"
	"review_ledger/internal/domain"
	"review_ledger/internal/ledger"
)

// LedgerService hosts the ledger core: it supplies caller identity and
// logical time, serialises requests, and persists every effect before the
// in-memory state moves.
type LedgerService struct {
	mu    sync.Mutex
	core  *ledger.Ledger
	reg   domain.Registry
	store domain.LedgerStore
	views *ViewCache
	clock domain.Clock
	now   func() time.Time
}

// NewLedgerService builds a service over an empty ledger. store and views may be nil.
func NewLedgerService(reg domain.Registry, store domain.LedgerStore, views *ViewCache, clk domain.Clock) *LedgerService {
	return &LedgerService{
		core:  ledger.New(reg),
		reg:   reg,
		store: store,
		views: views,
		clock: clk,
		now:   time.Now,
	}
}

// Restore replaces the in-memory ledger with the persisted one.
func (s *LedgerService) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	st, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	core, err := ledger.Restore(s.reg, st)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.core = core
	observability.ReviewCount.Set(float64(core.ReviewCount()))
	log.Info().Uint64("reviews", core.ReviewCount()).Bool("authority_set", st.Config.Authority != nil).Msg("ledger restored")
	return nil
}

func (s *LedgerService) event(kind domain.EventKind, actor domain.Identity, height int64) domain.LedgerEvent {
	return domain.LedgerEvent{ID: uuid.NewString(), Kind: kind, Actor: actor, Height: height, RecordedAt: s.now()}
}

func (s *LedgerService) SetAuthorityContract(ctx context.Context, candidate domain.Identity) (err error) {
	defer func() { observability.ObserveTransition("set_authority", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.core.PlanAuthority(candidate)
	if err != nil {
		log.Debug().Str("candidate", string(candidate)).Msg("authority rejected")
		return err
	}
	if s.store != nil {
		ev := s.event(domain.EventAuthoritySet, candidate, s.clock.Now())
		v := string(candidate)
		ev.Value = &v
		if err := s.store.SaveConfig(ctx, c, ev); err != nil {
			return fmt.Errorf("persist authority: %w", err)
		}
	}
	s.core.ApplyConfig(c)
	log.Info().Str("op", "set_authority").Str("authority", string(candidate)).Msg("ledger config changed")
	return nil
}

func (s *LedgerService) SetCooldownPeriod(ctx context.Context, caller domain.Identity, period int64) (err error) {
	defer func() { observability.ObserveTransition("set_cooldown", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.core.PlanCooldown(period)
	if err != nil {
		log.Debug().Int64("period", period).Msg("cooldown rejected")
		return err
	}
	if s.store != nil {
		ev := s.event(domain.EventCooldownSet, caller, s.clock.Now())
		v := strconv.FormatInt(period, 10)
		ev.Value = &v
		if err := s.store.SaveConfig(ctx, c, ev); err != nil {
			return fmt.Errorf("persist cooldown: %w", err)
		}
	}
	s.core.ApplyConfig(c)
	log.Info().Str("op", "set_cooldown").Int64("period", period).Msg("ledger config changed")
	return nil
}

func (s *LedgerService) SubmitReview(ctx context.Context, caller domain.Identity, locationID uint64, text string, rating uint32) (id uint64, err error) {
	defer func() { observability.ObserveTransition("submit", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	env := ledger.Env{Caller: caller, Now: s.clock.Now()}
	sub, err := s.core.PlanSubmit(ctx, env, locationID, text, rating)
	if err != nil {
		if code, ok := domain.CodeOf(err); ok {
			log.Debug().Str("author", string(caller)).Uint64("location_id", locationID).Uint32("code", uint32(code)).Msg("submission rejected")
		}
		return 0, err
	}
	if s.store != nil {
		ev := s.event(domain.EventReviewCreated, caller, env.Now)
		ev.ReviewID, ev.LocationID, ev.Fingerprint = &sub.Review.ID, &sub.Review.LocationID, &sub.Review.Fingerprint
		if err := s.store.InsertReview(ctx, sub.Review, sub.Index, ev); err != nil {
			return 0, fmt.Errorf("persist review %d: %w", sub.Review.ID, err)
		}
	}
	s.core.ApplySubmit(sub)
	observability.ReviewCount.Set(float64(s.core.ReviewCount()))

	s.views.publish(ctx,
		view{reviewKey(sub.Review.ID), sub.Review},
		view{userReviewKey(sub.Key.Author, sub.Key.LocationID), sub.Index},
		view{reviewCountKey, s.core.ReviewCount()},
	)
	log.Info().
		Str("op", "submit").
		Uint64("review_id", sub.Review.ID).
		Str("author", string(caller)).
		Uint64("location_id", locationID).
		Int64("height", env.Now).
		Msg("review created")
	return sub.Review.ID, nil
}

func (s *LedgerService) UpdateReview(ctx context.Context, caller domain.Identity, reviewID uint64, text string, rating uint32) (err error) {
	defer func() { observability.ObserveTransition("update", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	env := ledger.Env{Caller: caller, Now: s.clock.Now()}
	up, err := s.core.PlanUpdate(env, reviewID, text, rating)
	if err != nil {
		log.Debug().Str("caller", string(caller)).Uint64("review_id", reviewID).Msg("update rejected")
		return err
	}
	if s.store != nil {
		ev := s.event(domain.EventReviewUpdated, caller, env.Now)
		ev.ReviewID, ev.LocationID, ev.Fingerprint = &up.Review.ID, &up.Review.LocationID, &up.Review.Fingerprint
		if err := s.store.UpdateReview(ctx, up.Review, up.Index, ev); err != nil {
			return fmt.Errorf("persist review %d: %w", reviewID, err)
		}
	}
	s.core.ApplyUpdate(up)

	s.views.publish(ctx,
		view{reviewKey(reviewID), up.Review},
		view{userReviewKey(up.Key.Author, up.Key.LocationID), up.Index},
	)
	log.Info().
		Str("op", "update").
		Uint64("review_id", reviewID).
		Str("author", string(caller)).
		Int64("height", env.Now).
		Msg("review updated")
	return nil
}

/********** reads straight from the core (implements domain.ReviewReader) **********/

func (s *LedgerService) GetReview(_ context.Context, id uint64) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rv, ok := s.core.Review(id)
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, nil
}

func (s *LedgerService) GetUserReview(_ context.Context, author domain.Identity, locationID uint64) (domain.UserReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ur, ok := s.core.UserReview(author, locationID)
	if !ok {
		return domain.UserReview{}, domain.ErrNotFound
	}
	return ur, nil
}

func (s *LedgerService) GetReviewCount(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.ReviewCount(), nil
}

func (s *LedgerService) Config() domain.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Config()
}
