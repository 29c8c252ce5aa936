package repository

import (
	"context"
	"fmt"

	"arcana/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ListingFeeFilter struct {
	Status            string
	Search            string
	RequestedBy       *uuid.UUID
	CurrentApproverID *uuid.UUID
}

type ListingFeeRepository interface {
	Create(ctx context.Context, fee *model.ListingFee) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ListingFee, error)
	AttachRequest(ctx context.Context, id, requestID uuid.UUID) error
	ApplyStatus(ctx context.Context, id uuid.UUID, status string) error
	List(ctx context.Context, filter ListingFeeFilter, page, limit int) ([]model.ListingFee, int64, error)
}

type listingFeeRepository struct {
	db *gorm.DB
}

func NewListingFeeRepository(db *gorm.DB) ListingFeeRepository {
	return &listingFeeRepository{db: db}
}

func (r *listingFeeRepository) Create(ctx context.Context, fee *model.ListingFee) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(fee).Error; err != nil {
		return fmt.Errorf("failed to create listing fee: %w", err)
	}
	if len(fee.Items) == 0 {
		return nil
	}
	for i := range fee.Items {
		fee.Items[i].ListingFeeID = fee.ID
	}
	if err := db.Create(&fee.Items).Error; err != nil {
		return fmt.Errorf("failed to create listing fee items: %w", err)
	}
	return nil
}

func (r *listingFeeRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ListingFee, error) {
	var fee model.ListingFee
	if err := GetDB(ctx, r.db).
		Preload("Items").Preload("Client").Preload("Requester").
		First(&fee, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &fee, nil
}

func (r *listingFeeRepository) AttachRequest(ctx context.Context, id, requestID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.ListingFee{}).Where("id = ?", id).Update("request_id", requestID).Error
}

func (r *listingFeeRepository) ApplyStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := GetDB(ctx, r.db).Model(&model.ListingFee{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update listing fee status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *listingFeeRepository) filtered(ctx context.Context, filter ListingFeeFilter) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.ListingFee{})
	if filter.Status != "" {
		query = query.Where("listing_fees.status = ?", filter.Status)
	}
	if filter.RequestedBy != nil {
		query = query.Where("listing_fees.requested_by = ?", *filter.RequestedBy)
	}
	if filter.CurrentApproverID != nil {
		query = query.Where("listing_fees.request_id IN (?)",
			GetDB(ctx, r.db).Model(&model.Request{}).Select("id").Where("current_approver_id = ?", *filter.CurrentApproverID))
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("listing_fees.client_id IN (?)",
			GetDB(ctx, r.db).Model(&model.Client{}).Select("id").Where("business_name LIKE ? OR fullname LIKE ?", like, like))
	}
	return query
}

func (r *listingFeeRepository) List(ctx context.Context, filter ListingFeeFilter, page, limit int) ([]model.ListingFee, int64, error) {
	var fees []model.ListingFee
	var total int64

	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.filtered(ctx, filter).
		Preload("Items").Preload("Client").Preload("Requester").
		Order("listing_fees.created_at DESC").Offset(offset).Limit(limit).
		Find(&fees).Error; err != nil {
		return nil, 0, err
	}
	return fees, total, nil
}
