package grant

import (
	"context"
	"fmt"
	"time"

	"careplane/pkg/errutil"
	"careplane/pkg/repository"
	"careplane/services/application"
	"careplane/services/identity"
	"careplane/services/license"
	"careplane/services/pricing"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	repo     repository.Repository[Grant]
	licenses *license.Service
	pricing  *pricing.Service
	apps     *application.Service
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Licenses *license.Service
	Pricing  *pricing.Service
	Apps     *application.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		repo:     repository.ProvideStore[Grant](p.DB),
		licenses: p.Licenses,
		pricing:  p.Pricing,
		apps:     p.Apps,
		now:      time.Now,
	}
}

// HasAccess is the authoritative grant lookup, consulted when the token's
// fast-path set does not already confirm access. Returns nil when the user
// holds no live grant.
func (s *Service) HasAccess(ctx context.Context, userID, tenantID, appSlug string) (*Grant, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	app, err := s.apps.ResolveSlug(ctx, appSlug)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, nil
	}

	return s.activeGrant(ctx, nil, userID, tenantID, app.ID)
}

func (s *Service) activeGrant(ctx context.Context, tx *gorm.DB, userID, tenantID, appID string) (*Grant, error) {
	g, err := s.repo.WithTrx(tx).FindOne(ctx, &Grant{
		UserID:   userID,
		TenantID: tenantID,
		AppID:    appID,
		Active:   true,
	})
	if err != nil {
		zap.L().Error("failed to query grant",
			zap.String("user_id", userID), zap.String("app_id", appID), zap.Error(err))
		return nil, err
	}
	if g == nil || !g.Live(s.now()) {
		return nil, nil
	}
	return g, nil
}

type GrantParams struct {
	UserID    string
	TenantID  string
	AppSlug   string
	RoleInApp string
	GrantedBy string
	ExpiresAt *time.Time
	// UserTypeID selects the pricing entry; callers pass the grantee's
	// current user type.
	UserTypeID string
	// TenantRole is the grantee's tenant role, used when RoleInApp is empty.
	TenantRole identity.TenantRole
}

// Result carries the grant together with the post-mutation seat count.
type Result struct {
	Grant     *Grant
	SeatsUsed int
}

// GrantAccess creates a grant after validating, in order: tenant license,
// seat availability, pricing. Nothing is written until all three hold; the
// grant row and the seat increment then commit in a single transaction, with
// the increment itself guarded so two concurrent grants cannot share the
// last seat.
func (s *Service) GrantAccess(ctx context.Context, params GrantParams) (*Result, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	app, err := s.apps.ResolveSlug(ctx, params.AppSlug)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, errutil.NotFound(errutil.ReasonApplicationNotFound,
			fmt.Sprintf("application %q is not registered", params.AppSlug))
	}

	lic, err := s.licenses.CheckLicense(ctx, params.TenantID, app.ID)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, errutil.Forbidden(errutil.ReasonNoTenantLicense,
			fmt.Sprintf("tenant holds no active license for %q", params.AppSlug))
	}

	if avail, err := s.licenses.CheckSeatAvailability(ctx, params.TenantID, app.ID); err != nil {
		return nil, err
	} else if avail != nil && avail.SeatsAvailable <= 0 {
		return nil, errutil.Forbidden(errutil.ReasonSeatLimitExceeded,
			fmt.Sprintf("seat limit of %d reached for %q", avail.UserLimit, params.AppSlug))
	}

	entry, err := s.pricing.GetCurrentPrice(ctx, app.ID, params.UserTypeID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errutil.Conflict(errutil.ReasonPricingNotConfigured,
			fmt.Sprintf("no pricing configured for application %q and user type %q",
				params.AppSlug, params.UserTypeID))
	}

	roleInApp := params.RoleInApp
	if roleInApp == "" {
		roleInApp = string(params.TenantRole)
	}

	snapshot := entry.Snapshot()
	g := &Grant{
		ID:           s.node.Generate().String(),
		UserID:       params.UserID,
		TenantID:     params.TenantID,
		AppID:        app.ID,
		Active:       true,
		RoleInApp:    roleInApp,
		GrantedAt:    s.now(),
		GrantedBy:    params.GrantedBy,
		ExpiresAt:    params.ExpiresAt,
		Price:        snapshot.Price,
		Currency:     snapshot.Currency,
		BillingCycle: snapshot.BillingCycle,
		UserTypeID:   snapshot.UserTypeID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		seated, err := s.licenses.IncrementSeats(ctx, tx, lic.ID)
		if err != nil {
			return err
		}

		// The increment's UPDATE locks the license row, so two concurrent
		// grants for the same license run this read strictly one after the
		// other: the loser sees the winner's committed row. Checking before
		// the increment would read a pre-commit snapshot and let both pass.
		existing, err := s.activeGrant(ctx, tx, params.UserID, params.TenantID, app.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Rolls back the seat increment along with everything else.
			return errutil.Conflict(errutil.ReasonDuplicateGrant,
				fmt.Sprintf("user already holds an active grant for %q", params.AppSlug))
		}

		if !seated {
			limit := 0
			if lic.UserLimit != nil {
				limit = *lic.UserLimit
			}
			return errutil.Forbidden(errutil.ReasonSeatLimitExceeded,
				fmt.Sprintf("seat limit of %d reached for %q", limit, params.AppSlug))
		}

		return s.repo.WithTrx(tx).Create(ctx, g)
	}); err != nil {
		return nil, err
	}

	current, err := s.licenses.FindByID(ctx, lic.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{Grant: g}
	if current != nil {
		res.SeatsUsed = current.SeatsUsed
	}
	return res, nil
}

// Revoke deactivates the user's grant for an application and releases its
// seat. Revoking an already-inactive grant is a no-op; GrantNotFound is
// returned only when no row exists for the triple at all.
func (s *Service) Revoke(ctx context.Context, userID, tenantID, appSlug, revokedBy string) (*Grant, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	app, err := s.apps.ResolveSlug(ctx, appSlug)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, errutil.NotFound(errutil.ReasonApplicationNotFound,
			fmt.Sprintf("application %q is not registered", appSlug))
	}

	row, err := s.repo.FindOne(ctx, &Grant{UserID: userID, TenantID: tenantID, AppID: app.ID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errutil.NotFound(errutil.ReasonGrantNotFound,
			fmt.Sprintf("no grant exists for user %s on %q", userID, appSlug))
	}

	lic, err := s.licenses.FindByTenantApp(ctx, tenantID, app.ID)
	if err != nil {
		return nil, err
	}

	var revoked *Grant
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.WithTrx(tx).FindOne(ctx, &Grant{
			UserID:   userID,
			TenantID: tenantID,
			AppID:    app.ID,
			Active:   true,
		})
		if err != nil {
			return err
		}
		if active == nil {
			// Already revoked; idempotent, and no second decrement.
			revoked = row
			return nil
		}

		now := s.now()
		res := tx.WithContext(ctx).Model(&Grant{}).
			Where("id = ? AND active = ?", active.ID, true).
			Updates(map[string]any{
				"active":     false,
				"revoked_at": now,
				"revoked_by": revokedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent revoke; the winner decremented.
			revoked = active
			return nil
		}

		active.Active = false
		active.RevokedAt = &now
		active.RevokedBy = &revokedBy
		revoked = active

		if lic == nil {
			zap.L().Warn("no license row found while releasing seat",
				zap.String("tenant_id", tenantID), zap.String("app_id", app.ID))
			return nil
		}
		return s.licenses.DecrementSeats(ctx, tx, lic.ID)
	}); err != nil {
		return nil, err
	}

	return revoked, nil
}

// ActiveApplicationSlugs returns the slugs of every application the user
// holds a live grant for. Feeds the token's fast-path claim at issuance.
func (s *Service) ActiveApplicationSlugs(ctx context.Context, userID, tenantID string) ([]string, error) {
	var slugs []string
	now := s.now()
	err := s.db.WithContext(ctx).Model(&Grant{}).
		Joins("JOIN applications ON applications.id = user_app_grants.app_id").
		Where("user_app_grants.user_id = ? AND user_app_grants.tenant_id = ? AND user_app_grants.active = ?",
			userID, tenantID, true).
		Where("user_app_grants.expires_at IS NULL OR user_app_grants.expires_at > ?", now).
		Pluck("applications.slug", &slugs).Error
	if err != nil {
		return nil, err
	}
	return slugs, nil
}
