package license

import (
	"context"
	"time"

	"careplane/pkg/db/option"
	"careplane/pkg/db/pagination"
	"careplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[License]
	now  func() time.Time
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[License](p.DB),
		now:  time.Now,
	}
}

// CheckLicense returns the usable license for (tenant, app), or nil when none
// exists, is expired, or is suspended. A nil expiry means "never expires".
func (s *Service) CheckLicense(ctx context.Context, tenantID, appID string) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	lic, err := s.repo.FindOne(ctx, &License{TenantID: tenantID, AppID: appID})
	if err != nil {
		zap.L().Error("failed to query tenant license",
			zap.String("tenant_id", tenantID), zap.String("app_id", appID), zap.Error(err))
		return nil, err
	}
	if lic == nil || !lic.Usable(s.now()) {
		return nil, nil
	}
	return lic, nil
}

// CheckSeatAvailability returns nil when the license has no seat cap.
// A zero or negative SeatsAvailable both mean "no availability"; negative
// only occurs if stored data was corrupted out-of-band.
func (s *Service) CheckSeatAvailability(ctx context.Context, tenantID, appID string) (*SeatAvailability, error) {
	lic, err := s.repo.FindOne(ctx, &License{TenantID: tenantID, AppID: appID})
	if err != nil {
		return nil, err
	}
	if lic == nil || lic.UserLimit == nil {
		return nil, nil
	}

	avail := &SeatAvailability{
		SeatsAvailable: *lic.UserLimit - lic.SeatsUsed,
		UserLimit:      *lic.UserLimit,
		SeatsUsed:      lic.SeatsUsed,
	}
	if avail.SeatsAvailable < 0 {
		zap.L().Warn("license seat counter above capacity",
			zap.String("license_id", lic.ID),
			zap.Int("seats_used", lic.SeatsUsed),
			zap.Int("user_limit", *lic.UserLimit))
	}
	return avail, nil
}

// IncrementSeats performs a check-and-increment against the license row. The
// guard keeps two concurrent grants from both taking the last seat. Returns
// false when no seat was available (or the license vanished).
func (s *Service) IncrementSeats(ctx context.Context, tx *gorm.DB, licenseID string) (bool, error) {
	if tx == nil {
		tx = s.db
	}

	res := tx.WithContext(ctx).Model(&License{}).
		Where("id = ? AND (user_limit IS NULL OR seats_used < user_limit)", licenseID).
		Update("seats_used", gorm.Expr("seats_used + 1"))
	if res.Error != nil {
		zap.L().Error("failed to increment seats", zap.String("license_id", licenseID), zap.Error(res.Error))
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DecrementSeats is floor-clamped at zero: decrementing an already-zero
// counter is a logic error upstream, logged here but not surfaced.
func (s *Service) DecrementSeats(ctx context.Context, tx *gorm.DB, licenseID string) error {
	if tx == nil {
		tx = s.db
	}

	res := tx.WithContext(ctx).Model(&License{}).
		Where("id = ? AND seats_used > 0", licenseID).
		Update("seats_used", gorm.Expr("seats_used - 1"))
	if res.Error != nil {
		zap.L().Error("failed to decrement seats", zap.String("license_id", licenseID), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected == 0 {
		zap.L().Warn("seat decrement clamped at zero", zap.String("license_id", licenseID))
	}
	return nil
}

// FindByID returns the license row or nil when absent, regardless of status.
func (s *Service) FindByID(ctx context.Context, licenseID string) (*License, error) {
	return s.repo.FindOne(ctx, &License{ID: licenseID})
}

// FindByTenantApp returns the license row regardless of status, or nil when
// none exists. Seat release on revoke applies even to suspended licenses.
func (s *Service) FindByTenantApp(ctx context.Context, tenantID, appID string) (*License, error) {
	return s.repo.FindOne(ctx, &License{TenantID: tenantID, AppID: appID})
}

type ActivateParams struct {
	TenantID  string
	AppID     string
	ExpiresAt *time.Time
	UserLimit *int
}

// Activate creates or re-activates the tenant's license for an application.
func (s *Service) Activate(ctx context.Context, params ActivateParams) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	existing, err := s.repo.FindOne(ctx, &License{TenantID: params.TenantID, AppID: params.AppID})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.repo.Update(ctx, existing.ID, map[string]any{
			"status":       StatusActive,
			"activated_at": s.now(),
			"expires_at":   params.ExpiresAt,
			"user_limit":   params.UserLimit,
		}); err != nil {
			return nil, err
		}
		return s.repo.FindOne(ctx, &License{ID: existing.ID})
	}

	lic := &License{
		ID:          s.node.Generate().String(),
		TenantID:    params.TenantID,
		AppID:       params.AppID,
		Status:      StatusActive,
		ActivatedAt: s.now(),
		ExpiresAt:   params.ExpiresAt,
		UserLimit:   params.UserLimit,
	}
	if err := s.repo.Create(ctx, lic); err != nil {
		zap.L().Error("failed to activate license", zap.Error(err))
		return nil, err
	}
	return lic, nil
}

// ListByTenant returns a page of a tenant's license rows, any status,
// newest first.
func (s *Service) ListByTenant(ctx context.Context, tenantID string, p pagination.Pagination) ([]*License, error) {
	if p.Limit <= 0 || p.Limit > 250 {
		p.Limit = 50
	}
	return s.repo.Find(ctx, &License{TenantID: tenantID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.ApplyPagination(p),
	)
}

// ExpireOverdue transitions active licenses whose expiry has passed. Used by
// the background sweep; returns the number of rows transitioned.
func (s *Service) ExpireOverdue(ctx context.Context, tenantID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&License{}).
		Where("tenant_id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
			tenantID, StatusActive, s.now()).
		Update("status", StatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// TenantIDsWithActiveLicenses lists tenants the sweep needs to visit.
func (s *Service) TenantIDsWithActiveLicenses(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&License{}).
		Where("status = ? AND expires_at IS NOT NULL", StatusActive).
		Distinct().Pluck("tenant_id", &ids).Error
	return ids, err
}
