package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"review_ledger/internal/domain"
)

// ErrStale means the database moved underneath the in-memory ledger, e.g. a
// second writer against the same schema.
var ErrStale = errors.New("mysql: ledger state is stale")

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valU64(p *uint64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
func valFingerprint(p *domain.Fingerprint) any {
	if p == nil {
		return nil
	}
	return p[:]
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// inTx runs fn in a transaction, rolling back on any error.
func (r *Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev domain.LedgerEvent) error {
	_, err := tx.ExecContext(ctx, insertEventSQL,
		ev.ID,
		string(ev.Kind),
		string(ev.Actor),
		valU64(ev.ReviewID),
		valU64(ev.LocationID),
		valFingerprint(ev.Fingerprint),
		valStr(ev.Value),
		ev.Height,
		ev.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.Kind, err)
	}
	return nil
}

/********** LedgerStore **********/

func (r *Repo) InsertReview(ctx context.Context, rv domain.Review, idx domain.UserReview, ev domain.LedgerEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, bumpCounterSQL, rv.ID+1, rv.ID)
		if err != nil {
			return fmt.Errorf("bump counter: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("bump counter to %d: %w", rv.ID+1, ErrStale)
		}
		if _, err := tx.ExecContext(ctx, insertReviewSQL,
			rv.ID,
			string(rv.Author),
			rv.LocationID,
			rv.Text,
			rv.Rating,
			rv.Timestamp,
			rv.Fingerprint[:],
			rv.IsActive,
		); err != nil {
			return fmt.Errorf("insert review %d: %w", rv.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertUserReviewSQL,
			string(rv.Author), rv.LocationID, idx.ReviewID, idx.LastSubmitted,
		); err != nil {
			return fmt.Errorf("insert user review %s-%d: %w", rv.Author, rv.LocationID, err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (r *Repo) UpdateReview(ctx context.Context, rv domain.Review, idx domain.UserReview, ev domain.LedgerEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		// Affected-row counts are unreliable here: an update that rewrites
		// identical values reports 0 unless the DSN sets clientFoundRows.
		var n int
		if err := tx.QueryRowContext(ctx, lockReviewForUpdateSQL, rv.ID, string(rv.Author), rv.LocationID).Scan(&n); err != nil {
			return fmt.Errorf("lock review %d: %w", rv.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("update review %d by %s: %w", rv.ID, rv.Author, ErrStale)
		}
		if _, err := tx.ExecContext(ctx, updateReviewSQL,
			rv.Text,
			rv.Rating,
			rv.Timestamp,
			rv.Fingerprint[:],
			rv.IsActive,
			rv.ID,
			string(rv.Author),
			rv.LocationID,
		); err != nil {
			return fmt.Errorf("update review %d: %w", rv.ID, err)
		}
		if _, err := tx.ExecContext(ctx, touchUserReviewSQL,
			idx.LastSubmitted, string(rv.Author), rv.LocationID, idx.ReviewID,
		); err != nil {
			return fmt.Errorf("touch user review %s-%d: %w", rv.Author, rv.LocationID, err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (r *Repo) SaveConfig(ctx context.Context, c domain.Config, ev domain.LedgerEvent) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullString
		if err := tx.QueryRowContext(ctx,
			`SELECT authority FROM ledger_config WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
			return fmt.Errorf("lock config: %w", err)
		}
		var next any
		if c.Authority != nil {
			next = string(*c.Authority)
		}
		if current.Valid && (c.Authority == nil || current.String != string(*c.Authority)) {
			return fmt.Errorf("authority already %q: %w", current.String, ErrStale)
		}
		if _, err := tx.ExecContext(ctx, saveConfigSQL, c.CooldownPeriod, next, next); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (r *Repo) Load(ctx context.Context) (domain.LedgerState, error) {
	st := domain.NewLedgerState()

	var authority sql.NullString
	if err := r.db.QueryRowContext(ctx, getConfigSQL).Scan(&st.Counter, &st.Config.CooldownPeriod, &authority); err != nil {
		return domain.LedgerState{}, fmt.Errorf("load config: %w", err)
	}
	if authority.Valid {
		a := domain.Identity(authority.String)
		st.Config.Authority = &a
	}

	rows, err := r.db.QueryContext(ctx, listReviewsSQL)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("load reviews: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return domain.LedgerState{}, err
		}
		st.Reviews[rv.ID] = rv
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerState{}, err
	}

	urows, err := r.db.QueryContext(ctx, listUserReviewsSQL)
	if err != nil {
		return domain.LedgerState{}, fmt.Errorf("load user reviews: %w", err)
	}
	defer urows.Close()
	for urows.Next() {
		var k domain.UserReviewKey
		var ur domain.UserReview
		var author string
		if err := urows.Scan(&author, &k.LocationID, &ur.ReviewID, &ur.LastSubmitted); err != nil {
			return domain.LedgerState{}, err
		}
		k.Author = domain.Identity(author)
		st.UserReviews[k] = ur
	}
	return st, urows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanReview(s scanner) (domain.Review, error) {
	var rv domain.Review
	var author string
	var fp []byte
	if err := s.Scan(&rv.ID, &author, &rv.LocationID, &rv.Text, &rv.Rating, &rv.Timestamp, &fp, &rv.IsActive); err != nil {
		return domain.Review{}, err
	}
	if len(fp) != len(rv.Fingerprint) {
		return domain.Review{}, fmt.Errorf("review %d: fingerprint has %d bytes", rv.ID, len(fp))
	}
	rv.Author = domain.Identity(author)
	copy(rv.Fingerprint[:], fp)
	return rv, nil
}

/********** ReviewReader **********/

func (r *Repo) GetReview(ctx context.Context, id uint64) (domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, getReviewSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) GetUserReview(ctx context.Context, author domain.Identity, locationID uint64) (domain.UserReview, error) {
	var ur domain.UserReview
	err := r.db.QueryRowContext(ctx, getUserReviewSQL, string(author), locationID).Scan(&ur.ReviewID, &ur.LastSubmitted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserReview{}, domain.ErrNotFound
	}
	return ur, err
}

func (r *Repo) GetReviewCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.db.QueryRowContext(ctx, `SELECT review_counter FROM ledger_config WHERE id = 1`).Scan(&n)
	return n, err
}

/********** Registry **********/

func (r *Repo) HasUser(ctx context.Context, id domain.Identity) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, hasUserSQL, string(id)).Scan(&ok)
	return ok, err
}

func (r *Repo) HasLocation(ctx context.Context, id uint64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, hasLocationSQL, id).Scan(&ok)
	return ok, err
}

/********** RegistryWriter **********/

func (r *Repo) UpsertUsers(ctx context.Context, us []domain.RegisteredUser) error {
	if len(us) == 0 {
		return nil
	}
	values := make([]string, 0, len(us))
	args := make([]any, 0, len(us)*3)
	for _, u := range us {
		values = append(values, "(?,?,?)")
		args = append(args, string(u.Identity), valStr(u.Name), valJSON(u.RawJSON))
	}
	_, err := r.db.ExecContext(ctx, upsertUsersPrefix+strings.Join(values, ",")+upsertUsersOnDup, args...)
	return err
}

func (r *Repo) UpsertLocation(ctx context.Context, l domain.RegisteredLocation) error {
	_, err := r.db.ExecContext(ctx, upsertLocationSQL,
		l.ID,
		valStr(l.Name),
		valStr(l.City),
		valStr(l.Country),
		valF64(l.Lat),
		valF64(l.Lon),
		valJSON(l.RawJSON),
	)
	return err
}

func (r *Repo) RemoveLocation(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, removeLocationSQL, id)
	return err
}

func (r *Repo) RemoveUsers(ctx context.Context, ids []domain.Identity) error {
	if len(ids) == 0 {
		return nil
	}
	marks := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		marks = append(marks, "?")
		args = append(args, string(id))
	}
	_, err := r.db.ExecContext(ctx, removeUsersPrefix+"("+strings.Join(marks, ",")+")", args...)
	return err
}

func (r *Repo) LogMiss(ctx context.Context, kind, ref string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, kind, ref, status, reason)
	return err
}
