package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/gen"
	"smallbiznis-rewards/pkg/hashistack/secretmanager"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/redis"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/bootstrap"
	"smallbiznis-rewards/services/catalog"
)

func main() {
	var b *bootstrap.Service

	opts := []fx.Option{
		secretmanager.Options(),
		config.Module,
		fx.Decorate(func(cfg *config.Config) *config.Config {
			cfg.Database.AutoMigrate = true
			return cfg
		}),
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		award.Module,
		catalog.Module,
		fx.Provide(bootstrap.NewService),
		fx.Populate(&b),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	runErr := b.Run(context.Background())
	if runErr != nil {
		zap.L().Error("seed failed", zap.Error(runErr))
	} else {
		zap.L().Info("seed finished")
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	_ = app.Stop(stopCtx)

	if runErr != nil {
		log.Fatalf("seed failed: %v", runErr)
	}
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
