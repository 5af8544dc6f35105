package grant

import (
	"time"

	"careplane/services/pricing"

	"github.com/shopspring/decimal"
)

// Grant is one user's activated access to one application within their
// tenant. Rows are never hard-deleted: a revoke deactivates, and a re-grant
// creates a fresh row, so every historical pricing snapshot survives.
// At most one row per (user, tenant, app) triple is active at a time.
type Grant struct {
	ID string `gorm:"column:id;primaryKey"`
	// The partial unique index backstops the in-transaction duplicate check:
	// even if two grants race past it, only one active row can commit.
	UserID   string `gorm:"column:user_id;not null;index:idx_grant_triple;uniqueIndex:uq_grant_active_triple,where:active"`
	TenantID string `gorm:"column:tenant_id;not null;index:idx_grant_triple;uniqueIndex:uq_grant_active_triple"`
	AppID    string `gorm:"column:app_id;not null;index:idx_grant_triple;uniqueIndex:uq_grant_active_triple"`
	Active   bool   `gorm:"column:active;not null;default:true"`
	// RoleInApp defaults from the caller-supplied value or the user's tenant
	// role at grant time.
	RoleInApp string     `gorm:"column:role_in_app;not null"`
	GrantedAt time.Time  `gorm:"column:granted_at;not null"`
	GrantedBy string     `gorm:"column:granted_by;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	RevokedBy *string    `gorm:"column:revoked_by"`

	// Pricing snapshot frozen at grant time; immune to later price changes.
	Price        decimal.Decimal      `gorm:"column:price;type:decimal(12,2);not null"`
	Currency     string               `gorm:"column:currency;size:3;not null"`
	BillingCycle pricing.BillingCycle `gorm:"column:billing_cycle;not null"`
	UserTypeID   string               `gorm:"column:user_type_id;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Grant) TableName() string {
	return "user_app_grants"
}

// Live reports whether the grant currently conveys access.
func (g *Grant) Live(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// PricingSnapshot returns the frozen commercial terms.
func (g *Grant) PricingSnapshot() pricing.Snapshot {
	return pricing.Snapshot{
		Price:        g.Price,
		Currency:     g.Currency,
		BillingCycle: g.BillingCycle,
		UserTypeID:   g.UserTypeID,
	}
}
