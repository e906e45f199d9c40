package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/db"
	"smallbiznis-rewards/pkg/gen"
	"smallbiznis-rewards/pkg/hashistack/secretmanager"
	"smallbiznis-rewards/pkg/health"
	"smallbiznis-rewards/pkg/httpapi"
	"smallbiznis-rewards/pkg/logger"
	"smallbiznis-rewards/pkg/otelcol"
	"smallbiznis-rewards/pkg/profiling"
	"smallbiznis-rewards/pkg/redis"
	"smallbiznis-rewards/pkg/sequence"
	"smallbiznis-rewards/pkg/server"
	asynqtask "smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/award"
	"smallbiznis-rewards/services/claim"
	"smallbiznis-rewards/services/crediting"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Options(),
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		asynqtask.Client,
		asynqtask.Server,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		award.Module,
		award.Worker,
		account.Module,
		crediting.Module,
		ledger.Module,
		claim.Module,
		claim.Worker,
		task.Module,
		task.Scheduling,
		task.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
