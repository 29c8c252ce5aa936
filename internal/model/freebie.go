package model

import (
	"time"

	"github.com/google/uuid"
)

// FreebieRequest is a batch of free items requested for a prospect client.
type FreebieRequest struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"client_id"`
	Client            *Client       `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	RequestID         *uuid.UUID    `gorm:"type:uuid;index" json:"request_id"`
	Request           *Request      `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	TransactionNumber string        `gorm:"type:varchar(30);uniqueIndex;not null" json:"transaction_number"`
	Status            string        `gorm:"type:varchar(40);not null;index" json:"status"`
	IsDelivered       bool          `gorm:"not null" json:"is_delivered"`
	PhotoProofPath    string        `gorm:"type:text" json:"photo_proof_path"`
	ESignaturePath    string        `gorm:"type:text" json:"e_signature_path"`
	RequestedBy       uuid.UUID     `gorm:"type:uuid;not null" json:"requested_by"`
	Items             []FreebieItem `gorm:"foreignKey:FreebieRequestID" json:"items"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// FreebieItem is one line of a FreebieRequest.
type FreebieItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FreebieRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"freebie_request_id"`
	ItemID           uuid.UUID `gorm:"type:uuid;not null" json:"item_id"`
	ItemCode         string    `gorm:"type:varchar(50)" json:"item_code"`
	ItemDescription  string    `gorm:"type:varchar(255)" json:"item_description"`
	Uom              string    `gorm:"type:varchar(20)" json:"uom"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	IsDelivered      bool      `gorm:"not null" json:"is_delivered"`
}
