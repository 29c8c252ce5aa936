package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingFee is a request to list items for a registered client.
type ListingFee struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *Client          `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	RequestID   *uuid.UUID       `gorm:"type:uuid;index" json:"request_id"`
	Request     *Request         `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	Status      string           `gorm:"type:varchar(40);not null;index" json:"status"`
	Total       decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"total"`
	RequestedBy uuid.UUID        `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester   *User            `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	IsActive    bool             `gorm:"not null" json:"is_active"`
	Items       []ListingFeeItem `gorm:"foreignKey:ListingFeeID" json:"items"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ListingFeeItem is one listed SKU and its unit cost.
type ListingFeeItem struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ListingFeeID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"listing_fee_id"`
	ItemID          uuid.UUID       `gorm:"type:uuid;not null" json:"item_id"`
	ItemCode        string          `gorm:"type:varchar(50)" json:"item_code"`
	ItemDescription string          `gorm:"type:varchar(255)" json:"item_description"`
	Uom             string          `gorm:"type:varchar(20)" json:"uom"`
	Sku             int             `gorm:"not null" json:"sku"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
}

// LineTotal is the cost of the line (sku * unit cost).
func (i ListingFeeItem) LineTotal() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(int64(i.Sku)))
}
