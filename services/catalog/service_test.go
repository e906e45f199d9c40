package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type refCounter struct {
	counts  map[string]int64
	inTx    int
	outside int
}

func newRefCounter() *refCounter {
	return &refCounter{counts: map[string]int64{}}
}

func (r *refCounter) CountBySetting(ctx context.Context, settingID string) (int64, error) {
	r.outside++
	return r.counts[settingID], nil
}

func (r *refCounter) WithTrx(tx *gorm.DB) ReferenceCounter {
	return txRefCounter{refs: r, tx: tx}
}

type txRefCounter struct {
	refs *refCounter
	tx   *gorm.DB
}

func (r txRefCounter) CountBySetting(ctx context.Context, settingID string) (int64, error) {
	if r.tx == nil {
		r.refs.outside++
	} else {
		r.refs.inTx++
	}
	return r.refs.counts[settingID], nil
}

func (r txRefCounter) WithTrx(tx *gorm.DB) ReferenceCounter {
	return txRefCounter{refs: r.refs, tx: tx}
}

type memoryRedis struct {
	redis.Cmdable
	values map[string]string
	gets   int
}

func (m *memoryRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.gets++
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func newTestService(t *testing.T, refs *refCounter) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &AwardSetting{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node, References: refs})
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }
func strPtr(v string) *string { return &v }

func TestCreateSetting(t *testing.T) {
	svc := newTestService(t, newRefCounter())
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSettingRequest{
		Name:              "Seven Day Streak",
		LoginDaysRequired: 7,
		TokenAmount:       int64Ptr(100),
		ExpiresAfterDays:  30,
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, "seven-day-streak", s.Code)
	require.True(t, s.Active)
	require.False(t, s.IsDaily())

	_, err = svc.Create(ctx, CreateSettingRequest{
		Name:              "Another",
		Code:              "Seven Day Streak",
		LoginDaysRequired: 3,
		TokenAmount:       int64Ptr(1),
	})
	require.ErrorIs(t, err, ErrCodeTaken)

	inactive, err := svc.Create(ctx, CreateSettingRequest{
		Name:              "Daily",
		LoginDaysRequired: 1,
		TokenAmount:       int64Ptr(5),
		Active:            boolPtr(false),
	})
	require.NoError(t, err)
	require.False(t, inactive.Active)

	got, err := svc.Get(ctx, inactive.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestCreateSettingValidation(t *testing.T) {
	svc := newTestService(t, newRefCounter())
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateSettingRequest
	}{
		{name: "missing name", req: CreateSettingRequest{LoginDaysRequired: 1, TokenAmount: int64Ptr(1)}},
		{name: "zero days", req: CreateSettingRequest{Name: "x", TokenAmount: int64Ptr(1)}},
		{name: "missing amount", req: CreateSettingRequest{Name: "x", LoginDaysRequired: 1}},
		{name: "negative amount", req: CreateSettingRequest{Name: "x", LoginDaysRequired: 1, TokenAmount: int64Ptr(-5)}},
		{name: "condition not bool", req: CreateSettingRequest{Name: "x", LoginDaysRequired: 1, TokenAmount: int64Ptr(1), Condition: "current_streak + 1"}},
		{name: "unknown variable", req: CreateSettingRequest{Name: "x", LoginDaysRequired: 1, TokenAmount: int64Ptr(1), Condition: "tier == 'gold'"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			require.ErrorIs(t, err, errutil.ValidationFailed("", nil))
		})
	}
}

func TestUpdateFreezesReferencedRule(t *testing.T) {
	refs := newRefCounter()
	svc := newTestService(t, refs)
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSettingRequest{Name: "week", LoginDaysRequired: 7, TokenAmount: int64Ptr(100)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, s.ID, UpdateSettingRequest{TokenAmount: int64Ptr(150)})
	require.NoError(t, err)
	require.Equal(t, int64(150), updated.TokenAmount)

	refs.counts[s.ID] = 3

	_, err = svc.Update(ctx, s.ID, UpdateSettingRequest{LoginDaysRequired: intPtr(5)})
	require.ErrorIs(t, err, ErrSettingReferenced)

	updated, err = svc.Update(ctx, s.ID, UpdateSettingRequest{
		Name:             strPtr("Week streak"),
		ExpiresAfterDays: intPtr(14),
		Condition:        strPtr("weekday != 0"),
		TokenAmount:      int64Ptr(150),
	})
	require.NoError(t, err)
	require.Equal(t, "Week streak", updated.Name)
	require.Equal(t, 14, updated.ExpiresAfterDays)
	require.Equal(t, "weekday != 0", updated.Condition)

	require.ErrorIs(t, svc.Delete(ctx, s.ID), ErrSettingReferenced)

	deactivated, err := svc.Deactivate(ctx, s.ID)
	require.NoError(t, err)
	require.False(t, deactivated.Active)

	_, err = svc.Update(ctx, "missing", UpdateSettingRequest{Name: strPtr("x")})
	require.ErrorIs(t, err, ErrSettingNotFound)
}

func TestDeleteUnreferenced(t *testing.T) {
	svc := newTestService(t, newRefCounter())
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSettingRequest{Name: "daily", LoginDaysRequired: 1, TokenAmount: int64Ptr(1)})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, s.ID))
	_, err = svc.Get(ctx, s.ID)
	require.ErrorIs(t, err, ErrSettingNotFound)
	require.ErrorIs(t, svc.Delete(ctx, s.ID), ErrSettingNotFound)
}

func TestReferenceCheckRunsInsideMutationTransaction(t *testing.T) {
	refs := newRefCounter()
	svc := newTestService(t, refs)
	ctx := context.Background()

	s, err := svc.Create(ctx, CreateSettingRequest{Name: "week", LoginDaysRequired: 7, TokenAmount: int64Ptr(100)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, s.ID, UpdateSettingRequest{LoginDaysRequired: intPtr(6)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, s.ID))

	require.Equal(t, 2, refs.inTx)
	require.Zero(t, refs.outside)
}

func TestLockForIssuance(t *testing.T) {
	svc := newTestService(t, newRefCounter())
	ctx := context.Background()

	week, err := svc.Create(ctx, CreateSettingRequest{Name: "week", LoginDaysRequired: 7, TokenAmount: int64Ptr(100)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateSettingRequest{Name: "daily", LoginDaysRequired: 1, TokenAmount: int64Ptr(10)})
	require.NoError(t, err)

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		locked, err := svc.LockForIssuance(ctx, tx, []string{week.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, locked, 1)
		require.Equal(t, week.ID, locked[0].ID)

		none, err := svc.LockForIssuance(ctx, tx, nil)
		require.NoError(t, err)
		require.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestActiveSettingsUsesCache(t *testing.T) {
	svc := newTestService(t, newRefCounter())
	rdb := &memoryRedis{values: map[string]string{}}
	svc.cache = NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	for _, req := range []CreateSettingRequest{
		{Name: "week", LoginDaysRequired: 7, TokenAmount: int64Ptr(100)},
		{Name: "daily", LoginDaysRequired: 1, TokenAmount: int64Ptr(10)},
		{Name: "off", LoginDaysRequired: 3, TokenAmount: int64Ptr(30), Active: boolPtr(false)},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	settings, err := svc.ActiveSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	require.Equal(t, "daily", settings[0].Code)
	require.Equal(t, "week", settings[1].Code)
	require.Len(t, rdb.values, 1)

	// served from cache even if the table changes underneath
	require.NoError(t, svc.db.Exec("DELETE FROM award_settings").Error)
	cached, err := svc.ActiveSettings(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 2)

	_, err = svc.Create(ctx, CreateSettingRequest{Name: "fresh", LoginDaysRequired: 2, TokenAmount: int64Ptr(20)})
	require.NoError(t, err)
	require.Empty(t, rdb.values, "writes invalidate the cache")

	settings, err = svc.ActiveSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 1)
	require.Equal(t, "fresh", settings[0].Code)
}

func TestConditionHolds(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	in := ConditionInput{CurrentStreak: 5, LongestStreak: 9, TotalLoginDays: 40, EventDate: saturday}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "", want: true},
		{expr: "weekday == 6", want: true},
		{expr: "current_streak >= 5 && longest_streak > current_streak", want: true},
		{expr: "total_login_days > 100", want: false},
		{expr: "event_date == '2026-03-07'", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			require.NoError(t, ValidateCondition(tt.expr))
			ok, err := (&AwardSetting{Condition: tt.expr}).ConditionHolds(in)
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}

	require.Error(t, ValidateCondition("current_streak"))
	require.Error(t, ValidateCondition("current_streak >"))
}

func TestExpiresAt(t *testing.T) {
	issued := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	require.Nil(t, (&AwardSetting{}).ExpiresAt(issued))

	at := (&AwardSetting{ExpiresAfterDays: 3}).ExpiresAt(issued)
	require.NotNil(t, at)
	require.Equal(t, issued.AddDate(0, 0, 3), *at)
}
