package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionOpenRequest     = "OPEN_REQUEST"
	ActionApproveLevel    = "APPROVE_LEVEL"
	ActionApproveRequest  = "APPROVE_REQUEST"
	ActionRejectRequest   = "REJECT_REQUEST"
	ActionVoidRequest     = "VOID_REQUEST"
	ActionReleaseFreebies = "RELEASE_FREEBIES"
	ActionReplaceChain    = "REPLACE_APPROVER_CHAIN"
)

// AuditLog tracks Who, What, and When for workflow transitions
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}
