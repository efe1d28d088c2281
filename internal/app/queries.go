package app

import (
	"context"
	"errors"
	"fmt"

	"review_ledger/internal/domain"
)

const reviewCountKey = "review_count"

func reviewKey(id uint64) string { return fmt.Sprintf("review:%d", id) }

func userReviewKey(author domain.Identity, locationID uint64) string {
	return fmt.Sprintf("user_review:%s", domain.UserReviewKey{Author: author, LocationID: locationID})
}

// QueryService serves the ledger's point lookups through a read-through cache.
// Absent entries are never cached so a later submission is visible at once.
type QueryService struct {
	reader domain.ReviewReader
	views  *ViewCache
}

// NewQueryService reads from r; views may be nil to read straight through.
func NewQueryService(r domain.ReviewReader, views *ViewCache) *QueryService {
	return &QueryService{reader: r, views: views}
}

func (s *QueryService) GetReview(ctx context.Context, id uint64) (domain.Review, error) {
	return readThrough(ctx, s.views, reviewKey(id), func() (domain.Review, error) {
		return s.reader.GetReview(ctx, id)
	})
}

func (s *QueryService) GetUserReview(ctx context.Context, author domain.Identity, locationID uint64) (domain.UserReview, error) {
	return readThrough(ctx, s.views, userReviewKey(author, locationID), func() (domain.UserReview, error) {
		return s.reader.GetUserReview(ctx, author, locationID)
	})
}

// GetReviewCount always succeeds from the caller's point of view unless the
// backing store itself fails.
func (s *QueryService) GetReviewCount(ctx context.Context) (uint64, error) {
	return readThrough(ctx, s.views, reviewCountKey, func() (uint64, error) {
		return s.reader.GetReviewCount(ctx)
	})
}

// IsNotFound reports whether err is an absent lookup.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
