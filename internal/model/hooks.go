package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are assigned client-side so that the same models run on postgres and sqlite.

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error              { assignID(&u.ID); return nil }
func (c *Client) BeforeCreate(*gorm.DB) error            { assignID(&c.ID); return nil }
func (r *Request) BeforeCreate(*gorm.DB) error           { assignID(&r.ID); return nil }
func (a *Approval) BeforeCreate(*gorm.DB) error          { assignID(&a.ID); return nil }
func (c *ApprovalCandidate) BeforeCreate(*gorm.DB) error { assignID(&c.ID); return nil }
func (a *Approver) BeforeCreate(*gorm.DB) error          { assignID(&a.ID); return nil }
func (f *FreebieRequest) BeforeCreate(*gorm.DB) error    { assignID(&f.ID); return nil }
func (f *FreebieItem) BeforeCreate(*gorm.DB) error       { assignID(&f.ID); return nil }
func (l *ListingFee) BeforeCreate(*gorm.DB) error        { assignID(&l.ID); return nil }
func (l *ListingFeeItem) BeforeCreate(*gorm.DB) error    { assignID(&l.ID); return nil }
func (a *AuditLog) BeforeCreate(*gorm.DB) error          { assignID(&a.ID); return nil }
