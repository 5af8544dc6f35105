package license

import "time"

type LicenseStatus string

const (
	StatusActive    LicenseStatus = "active"
	StatusExpired   LicenseStatus = "expired"
	StatusSuspended LicenseStatus = "suspended"
)

// License is a tenant's entitlement to one application. Rows are never hard
// deleted; lifecycle is expressed through status transitions only.
type License struct {
	ID          string        `gorm:"column:id;primaryKey"`
	TenantID    string        `gorm:"column:tenant_id;not null;uniqueIndex:idx_tenant_app"`
	AppID       string        `gorm:"column:app_id;not null;uniqueIndex:idx_tenant_app"`
	Status      LicenseStatus `gorm:"column:status;default:'active';not null"`
	ActivatedAt time.Time     `gorm:"column:activated_at"`
	ExpiresAt   *time.Time    `gorm:"column:expires_at"`
	// UserLimit is the seat capacity; nil means unlimited.
	UserLimit *int `gorm:"column:user_limit"`
	// SeatsUsed counts active grants against this license. Mutated only via
	// conditional updates; never negative, never above UserLimit.
	SeatsUsed int       `gorm:"column:seats_used;default:0;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (License) TableName() string {
	return "tenant_app_licenses"
}

// Usable reports whether the license currently entitles the tenant: status
// active and either no expiry or an expiry in the future.
func (l *License) Usable(now time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return false
	}
	return true
}

// SeatAvailability is the remaining capacity on a seat-capped license.
type SeatAvailability struct {
	SeatsAvailable int `json:"seats_available"`
	UserLimit      int `json:"user_limit"`
	SeatsUsed      int `json:"seats_used"`
}
