package scheduler

import (
	"context"

	"go.uber.org/fx"

	"github.com/smallbiznis/cirrus/internal/config"
)

var Module = fx.Module("scheduler",
	fx.Invoke(Register),
)

// Register starts the scheduler loop for the lifetime of the application.
func Register(lc fx.Lifecycle, cfg config.Config, p Params) error {
	if !cfg.SchedulerEnabled {
		return nil
	}

	sched, err := New(p)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(loopCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return nil
}
