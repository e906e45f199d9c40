package task

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
	),
)

var Scheduling = fx.Module("task.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

var Worker = fx.Module("task.worker",
	fx.Invoke(func(mux *asynq.ServeMux, svc *Service) {
		mux.Use(svc.TrackJobs)
	}),
)
