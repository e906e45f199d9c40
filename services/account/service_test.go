package account

import (
	"context"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Account{})
	svc := NewService(ServiceParams{DB: db})
	svc.now = func() time.Time { return time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestLinkAndUnlink(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	linked, err := svc.IsLinked(ctx, "acc-1")
	require.NoError(t, err)
	require.False(t, linked, "unknown accounts are not linked")

	acc, err := svc.Link(ctx, "acc-1", LinkRequest{ExternalAccountID: "wallet-1"})
	require.NoError(t, err)
	require.True(t, acc.Linked())
	require.Equal(t, "wallet-1", *acc.ExternalAccountID)

	linked, err = svc.IsLinked(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, linked)

	acc, err = svc.Link(ctx, "acc-1", LinkRequest{ExternalAccountID: "wallet-2"})
	require.NoError(t, err)
	require.Equal(t, "wallet-2", *acc.ExternalAccountID)

	require.NoError(t, svc.Unlink(ctx, "acc-1"))
	linked, err = svc.IsLinked(ctx, "acc-1")
	require.NoError(t, err)
	require.False(t, linked)

	acc, err = svc.Get(ctx, "acc-1")
	require.NoError(t, err)
	require.Nil(t, acc.ExternalAccountID)
	require.Nil(t, acc.LinkedAt)
}

func TestLinkValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Link(context.Background(), "acc-1", LinkRequest{})
	require.ErrorIs(t, err, errutil.ValidationFailed("", nil))
}

func TestMissingAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.ErrorIs(t, svc.Unlink(ctx, "ghost"), ErrAccountNotFound)
}

func TestLinkedNilSafe(t *testing.T) {
	var acc *Account
	require.False(t, acc.Linked())

	empty := ""
	require.False(t, (&Account{ExternalAccountID: &empty}).Linked())
}
