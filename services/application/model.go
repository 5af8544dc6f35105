package application

import (
	"time"

	"github.com/lib/pq"
)

// Application is a licensable product module within the platform, e.g. the
// transcription/quoting app ("tq") or practice management ("pm").
type Application struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Slug      string         `gorm:"column:slug;uniqueIndex;not null"`
	Name      string         `gorm:"column:name;not null"`
	Features  pq.StringArray `gorm:"column:features;type:text[]"`
	Active    bool           `gorm:"column:active;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Application) TableName() string {
	return "applications"
}
