package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"careplane/pkg/config"
	"careplane/pkg/db"
	"careplane/pkg/gen"
	"careplane/pkg/logger"
	"careplane/pkg/task"
	"careplane/services/license"
	licensetask "careplane/services/license/task"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		license.Module,
		task.Client,
		task.Server,
		fx.Invoke(
			registerHandlers,
			runSweepTicker,
		),
		fxLogger,
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func registerHandlers(mux *asynq.ServeMux, svc *license.Service) {
	mux.HandleFunc(licensetask.TypeLicenseExpirySweep, licensetask.HandleExpirySweep(svc))
}

// runSweepTicker enqueues the expiry sweep on the configured interval. The
// task itself is idempotent, so overlap with a slow previous run is harmless.
func runSweepTicker(lc fx.Lifecycle, cfg *config.Config, enq task.Enqueuer) {
	interval := cfg.Sweep.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						if _, err := enq.Enqueue(context.Background(), licensetask.NewExpirySweepTask(), asynq.Queue("low")); err != nil {
							zap.L().Error("failed to enqueue expiry sweep", zap.Error(err))
						}
					case <-done:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}
