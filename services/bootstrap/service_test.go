package bootstrap

import (
	"context"
	"testing"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRunMigratesAndSeeds(t *testing.T) {
	db := testutil.NewTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Database.AutoMigrate = true
	cfg.Rewards.DefaultSettings = []config.DefaultSetting{
		{Name: "Daily Login", LoginDaysRequired: 1, TokenAmount: 10},
		{Name: "Seven Day Streak", LoginDaysRequired: 7, TokenAmount: 100, ExpiresAfterDays: 30},
	}

	catalogSvc := catalog.NewService(catalog.ServiceParams{
		DB:         db,
		Node:       node,
		References: award.NewSettingReferences(award.NewStore(award.StoreParams{DB: db})),
	})
	svc := NewService(ServiceParams{DB: db, Config: cfg, Catalog: catalogSvc})
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx))
	for _, m := range Models() {
		require.True(t, db.Migrator().HasTable(m))
	}

	settings, err := catalogSvc.List(ctx, catalog.ListParams{})
	require.NoError(t, err)
	require.Len(t, settings, 2)
	require.Equal(t, "daily-login", settings[0].Code)
	require.Equal(t, "seven-day-streak", settings[1].Code)
	require.Equal(t, 30, settings[1].ExpiresAfterDays)

	// a second run keeps the seed idempotent
	require.NoError(t, svc.Run(ctx))
	settings, err = catalogSvc.List(ctx, catalog.ListParams{})
	require.NoError(t, err)
	require.Len(t, settings, 2)
}

func TestMigrateDisabled(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(ServiceParams{DB: db, Config: &config.Config{}})

	require.NoError(t, svc.Migrate())
	require.False(t, db.Migrator().HasTable(&award.Award{}))
}
