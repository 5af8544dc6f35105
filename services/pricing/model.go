package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Entry is one priced (application, user type) pair, versioned by a validity
// window. Price changes supersede old entries rather than overwriting them,
// so snapshots already frozen onto grants stay reproducible.
type Entry struct {
	ID           string          `gorm:"column:id;primaryKey"`
	AppID        string          `gorm:"column:app_id;not null;index:idx_pricing_pair"`
	UserTypeID   string          `gorm:"column:user_type_id;not null;index:idx_pricing_pair"`
	Price        decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null"`
	Currency     string          `gorm:"column:currency;size:3;not null"`
	BillingCycle BillingCycle    `gorm:"column:billing_cycle;not null"`
	ValidFrom    time.Time       `gorm:"column:valid_from;not null"`
	ValidTo      *time.Time      `gorm:"column:valid_to"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	CreatedBy    string          `gorm:"column:created_by"`
}

func (Entry) TableName() string {
	return "pricing_entries"
}

// Snapshot is the frozen price carried on a grant.
type Snapshot struct {
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
	UserTypeID   string          `json:"user_type_id"`
}

// Snapshot freezes the entry's commercial terms.
func (e *Entry) Snapshot() Snapshot {
	return Snapshot{
		Price:        e.Price,
		Currency:     e.Currency,
		BillingCycle: e.BillingCycle,
		UserTypeID:   e.UserTypeID,
	}
}
