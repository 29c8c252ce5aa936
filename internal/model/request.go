package model

import (
	"time"

	"github.com/google/uuid"
)

// Request is one workflow instance. Approvals holds the whole chain, created upfront.
type Request struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Module            Module      `gorm:"type:varchar(40);not null;index" json:"module"`
	SubjectType       SubjectType `gorm:"type:varchar(30);not null" json:"subject_type"`
	SubjectID         uuid.UUID   `gorm:"type:uuid;not null;index" json:"subject_id"`
	Status            string      `gorm:"type:varchar(40);not null;index" json:"status"`
	RequesterID       uuid.UUID   `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester         *User       `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	CurrentApproverID *uuid.UUID  `gorm:"type:uuid;index" json:"current_approver_id"`
	CurrentLevel      int         `gorm:"not null;default:0" json:"current_level"`
	Version           int         `gorm:"not null;default:1" json:"-"` // optimistic concurrency token
	Approvals         []Approval  `gorm:"foreignKey:RequestID" json:"approvals,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// IsTerminal reports whether the request no longer accepts decisions.
func (r *Request) IsTerminal() bool {
	return IsTerminalRequestStatus(r.Status)
}

// CurrentApproval returns the lowest active level still pending, or nil.
func (r *Request) CurrentApproval() *Approval {
	var current *Approval
	for i := range r.Approvals {
		a := &r.Approvals[i]
		if !a.IsActive || a.Status != ApprovalPending {
			continue
		}
		if current == nil || a.Level < current.Level {
			current = a
		}
	}
	return current
}

// MaxLevel is the last level of the chain.
func (r *Request) MaxLevel() int {
	max := 0
	for _, a := range r.Approvals {
		if a.Level > max {
			max = a.Level
		}
	}
	return max
}

// ApprovalAt returns the active approval at the given level, or nil.
func (r *Request) ApprovalAt(level int) *Approval {
	for i := range r.Approvals {
		if r.Approvals[i].Level == level && r.Approvals[i].IsActive {
			return &r.Approvals[i]
		}
	}
	return nil
}

// Approval is one step of a Request's chain.
type Approval struct {
	ID         uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID  uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_approval_request_level" json:"request_id"`
	Level      int                 `gorm:"not null;uniqueIndex:idx_approval_request_level" json:"level"`
	ApproverID *uuid.UUID          `gorm:"type:uuid;index" json:"approver_id"` // who acted; preassigned when the level has one candidate
	Approver   *User               `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	Status     string              `gorm:"type:varchar(20);not null;index" json:"status"`
	IsActive   bool                `gorm:"not null" json:"is_active"`
	IsApproved bool                `gorm:"not null" json:"is_approved"`
	Reason     *string             `gorm:"type:text" json:"reason"`
	DecidedAt  *time.Time          `json:"decided_at"`
	Candidates []ApprovalCandidate `gorm:"foreignKey:ApprovalID" json:"candidates,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// HasCandidate reports whether userID is an eligible approver for this level.
func (a *Approval) HasCandidate(userID uuid.UUID) bool {
	for _, c := range a.Candidates {
		if c.ApproverID == userID {
			return true
		}
	}
	return false
}

// CandidateIDs lists the eligible approvers of the level in chain order.
func (a *Approval) CandidateIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a.Candidates))
	for _, c := range a.Candidates {
		ids = append(ids, c.ApproverID)
	}
	return ids
}

// ApprovalCandidate snapshots chain membership for a level at request creation.
type ApprovalCandidate struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ApprovalID uuid.UUID `gorm:"type:uuid;not null;index" json:"approval_id"`
	ApproverID uuid.UUID `gorm:"type:uuid;not null;index" json:"approver_id"`
	Position   int       `gorm:"not null" json:"position"`
}

// Approver is static chain configuration: a user acting at a level of a module.
type Approver struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Module    Module    `gorm:"type:varchar(40);not null;index" json:"module"`
	Level     int       `gorm:"not null" json:"level"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
