package award

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/services/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.NewTestDB(t, &Award{})
	return NewStore(StoreParams{DB: db})
}

func pendingAward(id, accountID, settingID, day string) *Award {
	return &Award{
		ID:                  id,
		AccountID:           accountID,
		AwardSettingID:      settingID,
		IssuanceDay:         day,
		TokenAmount:         10,
		StreakDayAtIssuance: 1,
		Status:              StatusPending,
		ClaimReference:      ClaimReferenceFor(id),
		CreatedAt:           issuedAt,
		UpdatedAt:           issuedAt,
	}
}

func TestStoreInsertIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, got, err := store.InsertIfAbsent(ctx, pendingAward("a1", "acc-1", "daily", "2026-03-02"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, "a1", got.ID)

	inserted, got, err = store.InsertIfAbsent(ctx, pendingAward("a2", "acc-1", "daily", "2026-03-02"))
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "a1", got.ID)

	inserted, _, err = store.InsertIfAbsent(ctx, pendingAward("a3", "acc-1", "daily", "2026-03-03"))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, _, err = store.InsertIfAbsent(ctx, pendingAward("a4", "acc-2", "daily", "2026-03-02"))
	require.NoError(t, err)
	require.True(t, inserted)

	missing, err := store.Get(ctx, "a2")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStoreMilestoneSlotIsUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, _, err := store.InsertIfAbsent(ctx, pendingAward("m1", "acc-1", "week", ""))
	require.NoError(t, err)
	require.True(t, inserted)

	// the unique index holds even when the conflict clause is bypassed
	err = store.db.WithContext(ctx).Create(pendingAward("m2", "acc-1", "week", "")).Error
	require.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)
}

func TestStoreListByAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, a := range []*Award{
		pendingAward("a1", "acc-1", "daily", "2026-03-01"),
		pendingAward("a2", "acc-1", "daily", "2026-03-02"),
		pendingAward("a3", "acc-1", "week", ""),
		pendingAward("a4", "acc-2", "daily", "2026-03-02"),
	} {
		_, _, err := store.InsertIfAbsent(ctx, a)
		require.NoError(t, err)
	}
	_, err := store.TransitionPendingToClaimed(ctx, "a2", "conf-2", issuedAt)
	require.NoError(t, err)

	page, info, err := store.ListByAccount(ctx, "acc-1", ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "a3", page[0].ID)
	require.Equal(t, "a2", page[1].ID)
	require.True(t, info.HasMore)

	rest, info, err := store.ListByAccount(ctx, "acc-1", ListParams{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "a1", rest[0].ID)
	require.False(t, info.HasMore)

	claimed, _, err := store.ListByAccount(ctx, "acc-1", ListParams{Status: StatusClaimed})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "a2", claimed[0].ID)

	none, _, err := store.ListByAccount(ctx, "acc-9", ListParams{})
	require.NoError(t, err)
	require.Empty(t, none)

	_, _, err = store.ListByAccount(ctx, "acc-1", ListParams{Cursor: "%%%"})
	require.ErrorIs(t, err, errutil.BadRequest("", nil))
}

func TestStoreListForIssuance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, a := range []*Award{
		pendingAward("a1", "acc-1", "daily", "2026-03-01"),
		pendingAward("a2", "acc-1", "daily", "2026-03-02"),
		pendingAward("a3", "acc-1", "week", ""),
		pendingAward("a4", "acc-2", "week", ""),
	} {
		_, _, err := store.InsertIfAbsent(ctx, a)
		require.NoError(t, err)
	}

	got, err := store.ListForIssuance(ctx, "acc-1", "2026-03-02")
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, a := range got {
		ids[a.ID] = true
	}
	require.Equal(t, map[string]bool{"a2": true, "a3": true}, ids)
}

func TestStoreTransitionPendingToClaimed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.InsertIfAbsent(ctx, pendingAward("a1", "acc-1", "daily", "2026-03-02"))
	require.NoError(t, err)
	_, err = store.MarkDispatched(ctx, "a1", issuedAt)
	require.NoError(t, err)

	claimedAt := issuedAt.Add(time.Minute)
	ok, err := store.TransitionPendingToClaimed(ctx, "a1", "conf-1", claimedAt)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TransitionPendingToClaimed(ctx, "a1", "conf-2", claimedAt)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StatusClaimed, got.Status)
	require.Equal(t, "conf-1", got.ExternalConfirmationID)
	require.NotNil(t, got.ClaimedAt)
	require.True(t, claimedAt.Equal(*got.ClaimedAt))
	require.Nil(t, got.ClaimDispatchedAt)

	ok, err = store.TransitionPendingToClaimed(ctx, "missing", "conf-3", claimedAt)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreTransitionHasSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.InsertIfAbsent(ctx, pendingAward("a1", "acc-1", "daily", "2026-03-02"))
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TransitionPendingToClaimed(ctx, "a1", "conf", issuedAt)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestStoreDispatchMarker(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.InsertIfAbsent(ctx, pendingAward("a1", "acc-1", "daily", "2026-03-01"))
	require.NoError(t, err)
	_, _, err = store.InsertIfAbsent(ctx, pendingAward("a2", "acc-1", "daily", "2026-03-02"))
	require.NoError(t, err)

	d1, err := store.MarkDispatched(ctx, "a1", issuedAt)
	require.NoError(t, err)
	require.NotNil(t, d1)
	require.Nil(t, d1.Previous)
	d2, err := store.MarkDispatched(ctx, "a2", issuedAt.Add(10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, d2)

	stale, err := store.ListDispatched(ctx, issuedAt.Add(5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "a1", stale[0].ID)

	cleared, err := store.ClearDispatched(ctx, "a1", *stale[0].ClaimDispatchedAt)
	require.NoError(t, err)
	require.True(t, cleared)
	stale, err = store.ListDispatched(ctx, issuedAt.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "a2", stale[0].ID)

	cleared, err = store.ClearDispatched(ctx, "a2", issuedAt)
	require.NoError(t, err)
	require.False(t, cleared, "a marker written by another dispatch is left alone")

	_, err = store.TransitionPendingToClaimed(ctx, "a2", "conf", issuedAt)
	require.NoError(t, err)
	d, err := store.MarkDispatched(ctx, "a2", issuedAt)
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestStoreDispatchesWriteDistinctMarkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sweepAt := issuedAt.Add(48 * time.Hour)

	a := pendingAward("a1", "acc-1", "daily", "2026-03-01")
	expiresAt := issuedAt.Add(24 * time.Hour)
	a.ExpiresAt = &expiresAt
	_, _, err := store.InsertIfAbsent(ctx, a)
	require.NoError(t, err)

	first, err := store.MarkDispatched(ctx, "a1", issuedAt)
	require.NoError(t, err)
	second, err := store.MarkDispatched(ctx, "a1", issuedAt)
	require.NoError(t, err)

	require.True(t, second.At.After(first.At))
	require.NotNil(t, second.Previous)
	require.True(t, first.At.Equal(*second.Previous))

	// the earlier attempt is refused; the later one is still in flight
	reverted, err := store.RevertDispatched(ctx, "a1", first)
	require.NoError(t, err)
	require.False(t, reverted)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, second.At.Equal(*got.ClaimDispatchedAt))

	// the later attempt is refused; the earlier one may still be in flight
	reverted, err = store.RevertDispatched(ctx, "a1", second)
	require.NoError(t, err)
	require.True(t, reverted)

	got, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got.ClaimDispatchedAt)
	require.True(t, first.At.Equal(*got.ClaimDispatchedAt))

	n, err := store.ExpirePending(ctx, sweepAt, 10)
	require.NoError(t, err)
	require.Zero(t, n)

	reverted, err = store.RevertDispatched(ctx, "a1", first)
	require.NoError(t, err)
	require.True(t, reverted)

	got, err = store.Get(ctx, "a1")
	require.NoError(t, err)
	require.Nil(t, got.ClaimDispatchedAt)

	n, err = store.ExpirePending(ctx, sweepAt, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestStoreExpirePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := issuedAt.Add(-time.Hour)
	future := issuedAt.Add(time.Hour)

	overdue := pendingAward("a1", "acc-1", "daily", "2026-03-01")
	overdue.ExpiresAt = &past
	notYet := pendingAward("a2", "acc-1", "daily", "2026-03-02")
	notYet.ExpiresAt = &future
	forever := pendingAward("a3", "acc-1", "week", "")
	inFlight := pendingAward("a4", "acc-2", "daily", "2026-03-01")
	inFlight.ExpiresAt = &past

	for _, a := range []*Award{overdue, notYet, forever, inFlight} {
		_, _, err := store.InsertIfAbsent(ctx, a)
		require.NoError(t, err)
	}
	_, err := store.MarkDispatched(ctx, "a4", past)
	require.NoError(t, err)

	n, err := store.ExpirePending(ctx, issuedAt, 100)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	for id, want := range map[string]Status{"a1": StatusExpired, "a2": StatusPending, "a3": StatusPending, "a4": StatusPending} {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got.Status, id)
	}

	n, err = store.ExpirePending(ctx, issuedAt, 100)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestExpiryTaskRunsInBatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := issuedAt.Add(-time.Hour)
	for i, day := range []string{"2026-02-01", "2026-02-02", "2026-02-03", "2026-02-04", "2026-02-05"} {
		a := pendingAward(string(rune('a'+i)), "acc-1", "daily", day)
		a.ExpiresAt = &past
		_, _, err := store.InsertIfAbsent(ctx, a)
		require.NoError(t, err)
	}

	task := NewExpiryTask(ExpiryTaskParams{Store: store})
	task.batchSize = 2
	task.now = func() time.Time { return issuedAt }

	total, err := task.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	count, err := store.CountBySetting(ctx, "daily")
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}
