package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a customer or prospect. RegistrationStatus mirrors the outcome of
// the registration/freebie requests raised for it.
type Client struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Fullname           string         `gorm:"type:varchar(255);not null" json:"fullname"`
	BusinessName       string         `gorm:"type:varchar(255);not null;index" json:"business_name"`
	PhoneNumber        string         `gorm:"type:varchar(20)" json:"phone_number"`
	EmailAddress       string         `gorm:"type:varchar(255)" json:"email_address"`
	BusinessAddress    string         `gorm:"type:text" json:"business_address"`
	StoreType          string         `gorm:"type:varchar(100)" json:"store_type"`
	Origin             string         `gorm:"type:varchar(20);not null" json:"origin"`
	RegistrationStatus string         `gorm:"type:varchar(40);not null;index" json:"registration_status"`
	TermDays           int            `json:"term_days"`
	AddedBy            uuid.UUID      `gorm:"type:uuid;not null;index" json:"added_by"`
	AddedByUser        *User          `gorm:"foreignKey:AddedBy" json:"added_by_user,omitempty"`
	IsActive           bool           `gorm:"not null" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}
