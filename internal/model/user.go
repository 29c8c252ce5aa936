package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an application account (CDO, approver or admin).
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Fullname  string         `gorm:"type:varchar(255);not null" json:"fullname"`
	Username  string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash
	Role      string         `gorm:"type:varchar(50);not null" json:"role"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}
