package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"review_ledger/internal/domain"
)

// RegistrySyncService mirrors the external directory's user and location
// membership into the local registry tables the ledger reads.
type RegistrySyncService struct {
	dir domain.DirectoryClient
	reg domain.RegistryWriter
}

func NewRegistrySyncService(d domain.DirectoryClient, r domain.RegistryWriter) *RegistrySyncService {
	return &RegistrySyncService{dir: d, reg: r}
}

// maxUserPages bounds a runaway directory that always reports more pages.
const maxUserPages = 10_000

// SyncUsers pulls every page of users, upserts the active ones and removes
// the ones the directory marks inactive. Users the directory stops listing
// altogether are kept; a paged listing cannot prove absence.
// A missing or forbidden listing is recorded as a miss and ends the sync quietly.
func (s *RegistrySyncService) SyncUsers(ctx context.Context) (int, error) {
	total := 0
	for page := 1; page <= maxUserPages; page++ {
		items, more, err := s.dir.GetUsers(ctx, page)
		if err != nil {
			if status, reason, ok := missOf(err); ok {
				_ = s.reg.LogMiss(ctx, "users", strconv.Itoa(page), status, reason)
				return total, nil
			}
			return total, fmt.Errorf("users page %d: %w", page, err)
		}
		us, gone := mapUsers(items)
		if err := s.reg.UpsertUsers(ctx, us); err != nil {
			return total, fmt.Errorf("upsert users page %d: %w", page, err)
		}
		if err := s.reg.RemoveUsers(ctx, gone); err != nil {
			return total, fmt.Errorf("remove inactive users page %d: %w", page, err)
		}
		total += len(us)
		log.Debug().Int("page", page).Int("users", len(us)).Int("removed", len(gone)).Msg("users page synced")
		if !more {
			break
		}
	}
	return total, nil
}

// SyncLocation refreshes one location. Locations the directory no longer
// knows, or marks inactive, are removed from the registry.
func (s *RegistrySyncService) SyncLocation(ctx context.Context, id uint64) error {
	ref := strconv.FormatUint(id, 10)
	p, err := s.dir.GetLocation(ctx, id)
	if err != nil {
		if status, reason, ok := missOf(err); ok {
			_ = s.reg.LogMiss(ctx, "location", ref, status, reason)
			return s.reg.RemoveLocation(ctx, id)
		}
		// Anything else is unexpected (network/5xx/JSON/etc.) -> bubble up.
		return err
	}

	loc, active := mapLocation(p)
	if loc.ID != 0 && loc.ID != id {
		return fmt.Errorf("directory answered location %d for %d", loc.ID, id)
	}
	loc.ID = id
	if !active {
		_ = s.reg.LogMiss(ctx, "location", ref, http.StatusGone, "inactive")
		return s.reg.RemoveLocation(ctx, id)
	}
	if err := s.reg.UpsertLocation(ctx, loc); err != nil {
		return fmt.Errorf("upsert location %d: %w", id, err)
	}
	return nil
}

func missOf(err error) (int, string, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found", true
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden", true
	}
	return 0, "", false
}
