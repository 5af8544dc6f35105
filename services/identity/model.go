package identity

import "time"

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// TenantRole is the user's role within their tenant. Roles in a specific
// application may differ; see the grant's RoleInApp.
type TenantRole string

const (
	RoleOperations TenantRole = "operations"
	RoleManager    TenantRole = "manager"
	RoleAdmin      TenantRole = "admin"
)

// PlatformRoleInternalAdmin is a platform-level superuser scope, distinct
// from any tenant role.
const PlatformRoleInternalAdmin = "internal_admin"

type User struct {
	ID           string     `gorm:"column:id;primaryKey"`
	TenantID     string     `gorm:"column:tenant_id;not null;index"`
	Email        string     `gorm:"column:email;uniqueIndex;not null"`
	Name         string     `gorm:"column:name"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Role         TenantRole `gorm:"column:role;not null"`
	PlatformRole *string    `gorm:"column:platform_role"`
	UserTypeID   string     `gorm:"column:user_type_id;not null"`
	Status       UserStatus `gorm:"column:status;default:'active';not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// Principal is the verified actor derived from a bearer token. It lives only
// for the duration of one request.
type Principal struct {
	UserID       string
	TenantID     string
	Role         TenantRole
	PlatformRole string
	// AllowedApps is the application-slug set precomputed at token issuance.
	// It is a time-bounded cache; the grant store remains ground truth.
	AllowedApps []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// IsInternalAdmin reports whether the principal carries the platform
// superuser scope.
func (p Principal) IsInternalAdmin() bool {
	return p.PlatformRole == PlatformRoleInternalAdmin
}

// AllowsApp reports whether slug is in the token's precomputed fast-path set.
func (p Principal) AllowsApp(slug string) bool {
	for _, s := range p.AllowedApps {
		if s == slug {
			return true
		}
	}
	return false
}
