package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_ledger/internal/domain"
	"review_ledger/internal/ledger"
)

const (
	userA     domain.Identity = "ST1TEST"
	userB     domain.Identity = "ST2FAKE"
	authority domain.Identity = "ST2TEST"
)

func newLedger(t *testing.T) (*ledger.Ledger, *ledger.MapRegistry) {
	t.Helper()
	reg := ledger.NewMapRegistry()
	reg.Users[userA] = true
	reg.Locations[1] = true
	return ledger.New(reg), reg
}

func envA(now int64) ledger.Env { return ledger.Env{Caller: userA, Now: now} }

func requireCode(t *testing.T, want domain.Code, err error) {
	t.Helper()
	got, ok := domain.CodeOf(err)
	require.Truef(t, ok, "expected code %d, got %v", want, err)
	assert.Equal(t, want, got)
}

func TestSubmitReview_Success(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))

	id, err := l.SubmitReview(context.Background(), envA(0), 1, "Great place!", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	rv, ok := l.Review(0)
	require.True(t, ok)
	assert.Equal(t, userA, rv.Author)
	assert.Equal(t, uint64(1), rv.LocationID)
	assert.Equal(t, "Great place!", rv.Text)
	assert.Equal(t, uint32(4), rv.Rating)
	assert.Equal(t, int64(0), rv.Timestamp)
	assert.True(t, rv.IsActive)
	assert.Equal(t, ledger.Fingerprint("Great place!"), rv.Fingerprint)

	ur, ok := l.UserReview(userA, 1)
	require.True(t, ok)
	assert.Equal(t, domain.UserReview{ReviewID: 0, LastSubmitted: 0}, ur)
	assert.Equal(t, uint64(1), l.ReviewCount())
}

func TestSubmitReview_Gates(t *testing.T) {
	long := strings.Repeat("a", domain.MaxReviewText+1)

	cases := []struct {
		name   string
		setup  func(l *ledger.Ledger, reg *ledger.MapRegistry)
		env    ledger.Env
		loc    uint64
		text   string
		rating uint32
		want   domain.Code
	}{
		{name: "location zero", env: envA(0), loc: 0, text: "ok", rating: 4, want: domain.CodeInvalidLocation},
		{name: "empty text", env: envA(0), loc: 1, text: "", rating: 4, want: domain.CodeInvalidReviewText},
		{name: "text too long", env: envA(0), loc: 1, text: long, rating: 4, want: domain.CodeInvalidReviewText},
		{name: "invalid utf8", env: envA(0), loc: 1, text: "\xff\xfe", rating: 4, want: domain.CodeInvalidReviewText},
		{name: "rating zero", env: envA(0), loc: 1, text: "ok", rating: 0, want: domain.CodeInvalidRating},
		{name: "rating six", env: envA(0), loc: 1, text: "ok", rating: 6, want: domain.CodeInvalidRating},
		{name: "negative time", env: envA(-1), loc: 1, text: "ok", rating: 4, want: domain.CodeInvalidTimestamp},
		{name: "unknown user", env: ledger.Env{Caller: userB}, loc: 1, text: "ok", rating: 4, want: domain.CodeUserNotFound},
		{name: "unknown location", env: envA(0), loc: 2, text: "ok", rating: 4, want: domain.CodeLocationNotFound},
		{
			name:  "no authority",
			setup: func(*ledger.Ledger, *ledger.MapRegistry) {},
			env:   envA(0), loc: 1, text: "ok", rating: 4, want: domain.CodeNotAuthorized,
		},
		// first failing gate wins
		{name: "location and text", env: envA(0), loc: 0, text: "", rating: 4, want: domain.CodeInvalidLocation},
		{name: "text and rating", env: envA(0), loc: 1, text: "", rating: 9, want: domain.CodeInvalidReviewText},
		{name: "rating and user", env: ledger.Env{Caller: userB}, loc: 1, text: "ok", rating: 9, want: domain.CodeInvalidRating},
		{name: "user and location", env: ledger.Env{Caller: userB}, loc: 2, text: "ok", rating: 3, want: domain.CodeUserNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, reg := newLedger(t)
			if tc.setup != nil {
				tc.setup(l, reg)
			} else {
				require.NoError(t, l.SetAuthorityContract(authority))
			}
			_, err := l.SubmitReview(context.Background(), tc.env, tc.loc, tc.text, tc.rating)
			requireCode(t, tc.want, err)
			assert.Equal(t, uint64(0), l.ReviewCount())
			_, ok := l.Review(0)
			assert.False(t, ok)
		})
	}
}

func TestSubmitReview_DuplicateCheckedBeforeAuthority(t *testing.T) {
	rv := domain.Review{ID: 0, Author: userA, LocationID: 1, Text: "old", Rating: 2, Fingerprint: ledger.Fingerprint("old"), IsActive: true}
	st := domain.NewLedgerState()
	st.Counter = 1
	st.Reviews[0] = rv
	st.UserReviews[domain.UserReviewKey{Author: userA, LocationID: 1}] = domain.UserReview{ReviewID: 0}

	reg := ledger.NewMapRegistry()
	reg.Users[userA] = true
	reg.Locations[1] = true
	l, err := ledger.Restore(reg, st)
	require.NoError(t, err)

	_, err = l.SubmitReview(context.Background(), envA(1), 1, "new", 3)
	requireCode(t, domain.CodeReviewAlreadyExists, err)
}

func TestSubmitReview_TextLimitCountsRunes(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))

	text := strings.Repeat("é", domain.MaxReviewText)
	_, err := l.SubmitReview(context.Background(), envA(3), 1, text, 5)
	require.NoError(t, err)
}

func TestSubmitReview_DuplicateAlwaysRejected(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))

	_, err := l.SubmitReview(context.Background(), envA(0), 1, "Great place!", 4)
	require.NoError(t, err)

	for _, rating := range []uint32{1, 3, 5} {
		_, err = l.SubmitReview(context.Background(), envA(10), 1, "Another review", rating)
		requireCode(t, domain.CodeReviewAlreadyExists, err)
	}
	assert.Equal(t, uint64(1), l.ReviewCount())
}

func TestSubmitReview_CountsSequentialIDs(t *testing.T) {
	l, reg := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))
	reg.Locations[2] = true
	reg.Users[userB] = true

	ctx := context.Background()
	id0, err := l.SubmitReview(ctx, envA(0), 1, "Great place!", 4)
	require.NoError(t, err)
	id1, err := l.SubmitReview(ctx, envA(1), 2, "Nice spot!", 3)
	require.NoError(t, err)
	id2, err := l.SubmitReview(ctx, ledger.Env{Caller: userB, Now: 2}, 1, "Meh", 2)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 1, 2}, []uint64{id0, id1, id2})
	assert.Equal(t, uint64(3), l.ReviewCount())

	require.NoError(t, l.UpdateReview(envA(5), id1, "Even nicer", 5))
	assert.Equal(t, uint64(3), l.ReviewCount(), "updates never move the counter")
}

func TestSubmitReview_RegistryFailureIsNotARejection(t *testing.T) {
	boom := errors.New("registry down")
	l := ledger.New(failingRegistry{err: boom})
	require.NoError(t, l.SetAuthorityContract(authority))

	_, err := l.SubmitReview(context.Background(), envA(0), 1, "ok", 3)
	require.ErrorIs(t, err, boom)
	assert.False(t, domain.IsRejection(err))
}

func TestUpdateReview(t *testing.T) {
	setup := func(t *testing.T) *ledger.Ledger {
		l, _ := newLedger(t)
		require.NoError(t, l.SetAuthorityContract(authority))
		_, err := l.SubmitReview(context.Background(), envA(0), 1, "Great place!", 4)
		require.NoError(t, err)
		return l
	}

	t.Run("owner succeeds", func(t *testing.T) {
		l := setup(t)
		require.NoError(t, l.UpdateReview(envA(7), 0, "Updated review", 5))

		rv, _ := l.Review(0)
		assert.Equal(t, "Updated review", rv.Text)
		assert.Equal(t, uint32(5), rv.Rating)
		assert.Equal(t, int64(7), rv.Timestamp)
		assert.Equal(t, ledger.Fingerprint("Updated review"), rv.Fingerprint)
		assert.Equal(t, userA, rv.Author)
		assert.Equal(t, uint64(1), rv.LocationID)
		assert.Equal(t, uint64(0), rv.ID)

		ur, _ := l.UserReview(userA, 1)
		assert.Equal(t, int64(7), ur.LastSubmitted)
	})

	rejects := []struct {
		name   string
		env    ledger.Env
		id     uint64
		text   string
		rating uint32
	}{
		{name: "missing review", env: envA(1), id: 99, text: "Updated review", rating: 5},
		{name: "non owner", env: ledger.Env{Caller: userB, Now: 1}, id: 0, text: "Updated review", rating: 5},
		{name: "empty text", env: envA(1), id: 0, text: "", rating: 5},
		{name: "long text", env: envA(1), id: 0, text: strings.Repeat("x", 501), rating: 5},
		{name: "bad rating", env: envA(1), id: 0, text: "Updated review", rating: 0},
	}
	for _, tc := range rejects {
		t.Run(tc.name, func(t *testing.T) {
			l := setup(t)
			before, _ := l.Review(0)

			err := l.UpdateReview(tc.env, tc.id, tc.text, tc.rating)
			require.ErrorIs(t, err, domain.ErrUpdateRejected)
			_, coded := domain.CodeOf(err)
			assert.False(t, coded, "update failures carry no code")

			after, _ := l.Review(0)
			assert.Equal(t, before, after)
		})
	}
}

func TestSetAuthorityContract(t *testing.T) {
	l, _ := newLedger(t)

	require.ErrorIs(t, l.SetAuthorityContract(domain.BurnIdentity), domain.ErrConfigRejected)
	assert.Nil(t, l.Config().Authority)

	require.NoError(t, l.SetAuthorityContract(authority))
	require.ErrorIs(t, l.SetAuthorityContract(authority), domain.ErrConfigRejected)
	require.ErrorIs(t, l.SetAuthorityContract("ST3OTHER"), domain.ErrConfigRejected)

	c := l.Config()
	require.NotNil(t, c.Authority)
	assert.Equal(t, authority, *c.Authority)

	// the returned config is a copy
	*c.Authority = "mutated"
	assert.Equal(t, authority, *l.Config().Authority)
}

func TestSetCooldownPeriod(t *testing.T) {
	l, _ := newLedger(t)
	assert.Equal(t, int64(domain.DefaultCooldownPeriod), l.Config().CooldownPeriod)

	// authority is checked before the value
	require.ErrorIs(t, l.SetCooldownPeriod(288), domain.ErrConfigRejected)
	require.ErrorIs(t, l.SetCooldownPeriod(0), domain.ErrConfigRejected)

	require.NoError(t, l.SetAuthorityContract(authority))
	require.ErrorIs(t, l.SetCooldownPeriod(0), domain.ErrConfigRejected)
	require.ErrorIs(t, l.SetCooldownPeriod(-5), domain.ErrConfigRejected)
	assert.Equal(t, int64(domain.DefaultCooldownPeriod), l.Config().CooldownPeriod)

	require.NoError(t, l.SetCooldownPeriod(288))
	assert.Equal(t, int64(288), l.Config().CooldownPeriod)
}

func TestCooldownIsNotEnforced(t *testing.T) {
	l, reg := newLedger(t)
	reg.Locations[2] = true
	require.NoError(t, l.SetAuthorityContract(authority))
	require.NoError(t, l.SetCooldownPeriod(1000))

	ctx := context.Background()
	_, err := l.SubmitReview(ctx, envA(5), 1, "first", 4)
	require.NoError(t, err)
	_, err = l.SubmitReview(ctx, envA(5), 2, "second", 4)
	require.NoError(t, err)
	require.NoError(t, l.UpdateReview(envA(5), 0, "edited", 3))
}

func TestPlanSubmit_HasNoEffect(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))

	s, err := l.PlanSubmit(context.Background(), envA(0), 1, "Great place!", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Review.ID)
	assert.Equal(t, uint64(0), l.ReviewCount())
	_, ok := l.UserReview(userA, 1)
	assert.False(t, ok)

	l.ApplySubmit(s)
	assert.Equal(t, uint64(1), l.ReviewCount())
	assert.Panics(t, func() { l.ApplySubmit(s) })
}

func TestRestore(t *testing.T) {
	l, reg := newLedger(t)
	require.NoError(t, l.SetAuthorityContract(authority))
	_, err := l.SubmitReview(context.Background(), envA(4), 1, "Great place!", 4)
	require.NoError(t, err)

	rv, _ := l.Review(0)
	a := authority
	st := domain.LedgerState{
		Counter:     1,
		Config:      domain.Config{CooldownPeriod: 144, Authority: &a},
		Reviews:     map[uint64]domain.Review{0: rv},
		UserReviews: map[domain.UserReviewKey]domain.UserReview{{Author: userA, LocationID: 1}: {ReviewID: 0, LastSubmitted: 4}},
	}
	restored, err := ledger.Restore(reg, st)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), restored.ReviewCount())

	_, err = restored.SubmitReview(context.Background(), envA(5), 1, "again", 2)
	requireCode(t, domain.CodeReviewAlreadyExists, err)

	st.Counter = 2
	_, err = ledger.Restore(reg, st)
	assert.Error(t, err)

	st.Counter = 1
	rv.Text = "tampered"
	st.Reviews[0] = rv
	_, err = ledger.Restore(reg, st)
	assert.ErrorContains(t, err, "fingerprint")
}

func TestReservedCodesAreDeclared(t *testing.T) {
	codes := domain.Codes()
	require.Len(t, codes, 11)
	assert.Equal(t, domain.CodeNotAuthorized, codes[0])
	assert.Equal(t, domain.CodeInvalidReviewID, codes[10])
	for _, c := range []domain.Code{domain.CodeInvalidHash, domain.CodeCooldownActive, domain.CodeInvalidReviewID} {
		assert.True(t, c.Known())
	}
	assert.False(t, domain.Code(111).Known())
}

type failingRegistry struct{ err error }

func (f failingRegistry) HasUser(context.Context, domain.Identity) (bool, error) { return false, f.err }
func (f failingRegistry) HasLocation(context.Context, uint64) (bool, error)      { return false, f.err }
