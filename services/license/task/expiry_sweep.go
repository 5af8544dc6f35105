package task

import (
	"context"

	"careplane/pkg/taskname"
	"careplane/services/license"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const TypeLicenseExpirySweep = taskname.LicenseExpirySweep

// NewExpirySweepTask builds the periodic sweep task; it carries no payload.
func NewExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TypeLicenseExpirySweep, nil)
}

// HandleExpirySweep transitions past-expiry active licenses to expired,
// sweeping tenants concurrently.
func HandleExpirySweep(svc *license.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tenantIDs, err := svc.TenantIDsWithActiveLicenses(ctx)
		if err != nil {
			zap.L().Error("expiry sweep failed to list tenants", zap.Error(err))
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)

		for _, tenantID := range tenantIDs {
			g.Go(func() error {
				n, err := svc.ExpireOverdue(gctx, tenantID)
				if err != nil {
					zap.L().Error("expiry sweep failed",
						zap.String("tenant_id", tenantID), zap.Error(err))
					return err
				}
				if n > 0 {
					zap.L().Info("expired overdue licenses",
						zap.String("tenant_id", tenantID), zap.Int64("count", n))
				}
				return nil
			})
		}

		return g.Wait()
	}
}
