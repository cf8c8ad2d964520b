package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UsageAccountModel struct {
	UserID               string `gorm:"primaryKey"`
	Email                string `gorm:"not null"`
	Plan                 string `gorm:"not null"`
	GenerationsThisMonth int    `gorm:"not null"`
	MonthResetDate       time.Time `gorm:"not null"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time
}

type GenerationRecordModel struct {
	ID           string         `gorm:"primaryKey"`
	UserID       string         `gorm:"not null;index"`
	Input        datatypes.JSON `gorm:"type:jsonb;not null"`
	Document     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status       string         `gorm:"not null"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"not null;index"`
	CompletedAt  *time.Time
}
