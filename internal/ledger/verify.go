package ledger

import (
	"fmt"

	"review_ledger/internal/domain"
)

// Verify checks the ledger invariants over a state snapshot.
func Verify(st domain.LedgerState) error {
	if st.Config.CooldownPeriod <= 0 {
		return fmt.Errorf("ledger: cooldown period %d is not positive", st.Config.CooldownPeriod)
	}
	if st.Config.Authority != nil && *st.Config.Authority == domain.BurnIdentity {
		return fmt.Errorf("ledger: authority is the burn identity")
	}
	if uint64(len(st.Reviews)) != st.Counter {
		return fmt.Errorf("ledger: %d reviews but counter at %d", len(st.Reviews), st.Counter)
	}
	for id, rv := range st.Reviews {
		if id >= st.Counter || rv.ID != id {
			return fmt.Errorf("ledger: review %d stored under id %d (counter %d)", rv.ID, id, st.Counter)
		}
		if rv.Fingerprint != Fingerprint(rv.Text) {
			return fmt.Errorf("ledger: review %d fingerprint mismatch", id)
		}
		idx, ok := st.UserReviews[domain.UserReviewKey{Author: rv.Author, LocationID: rv.LocationID}]
		if !ok || idx.ReviewID != id {
			return fmt.Errorf("ledger: review %d missing from user index", id)
		}
	}
	for k, idx := range st.UserReviews {
		rv, ok := st.Reviews[idx.ReviewID]
		if !ok {
			return fmt.Errorf("ledger: index %s points at missing review %d", k, idx.ReviewID)
		}
		if rv.Author != k.Author || rv.LocationID != k.LocationID {
			return fmt.Errorf("ledger: index %s points at review %d of %s-%d", k, idx.ReviewID, rv.Author, rv.LocationID)
		}
	}
	return nil
}
