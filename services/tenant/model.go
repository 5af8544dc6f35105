package tenant

import "time"

type TenantStatus string

var (
	Active    TenantStatus = "active"
	Suspended TenantStatus = "suspended"
	Archived  TenantStatus = "archived"
)

func (t TenantStatus) String() string {
	switch t {
	case Active, Suspended, Archived:
		return string(t)
	default:
		return ""
	}
}

// Tenant is an isolated customer organization, typically a clinic or practice.
type Tenant struct {
	ID        string       `gorm:"column:id;primaryKey"`
	CreatedAt time.Time    `gorm:"column:created_at"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
	Name      string       `gorm:"column:name"`
	Slug      string       `gorm:"column:slug;uniqueIndex"`
	Status    TenantStatus `gorm:"column:status"`
}

func (Tenant) TableName() string {
	return "tenants"
}
