package audit

import (
	"time"

	"gorm.io/datatypes"
)

type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// DecisionLog is one immutable access-decision record. Rows are append-only;
// there is no update or delete path.
type DecisionLog struct {
	ID       string `gorm:"column:id;primaryKey"`
	ActorID  string `gorm:"column:actor_id;not null;index"`
	TenantID string `gorm:"column:tenant_id;not null;index"`
	// AppID is null when the requested application itself could not be
	// resolved.
	AppID       *string        `gorm:"column:app_id;index"`
	Decision    Decision       `gorm:"column:decision;not null"`
	ReasonCode  *string        `gorm:"column:reason_code"`
	RequestMeta datatypes.JSON `gorm:"column:request_meta"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (DecisionLog) TableName() string {
	return "access_decision_logs"
}
