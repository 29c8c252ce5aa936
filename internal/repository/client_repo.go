package repository

import (
	"context"
	"fmt"

	"arcana/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClientFilter narrows client listings.
type ClientFilter struct {
	RegistrationStatus string
	Origin             string
	Search             string
	AddedBy            *uuid.UUID
}

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Client, error)
	UpdateDetails(ctx context.Context, client *model.Client, expectedStatus string) error
	ApplyStatus(ctx context.Context, id uuid.UUID, status string) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error
	List(ctx context.Context, filter ClientFilter, page, limit int) ([]model.Client, int64, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Omit("AddedByUser").Create(client).Error
}

func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

func (r *clientRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&client).Error; err != nil {
		return nil, translate(err)
	}
	return &client, nil
}

var clientDetailColumns = []string{
	"fullname", "business_name", "phone_number", "email_address",
	"business_address", "store_type", "term_days",
}

// UpdateDetails writes the editable client fields only while the row still
// carries expectedStatus.
func (r *clientRepository) UpdateDetails(ctx context.Context, client *model.Client, expectedStatus string) error {
	res := GetDB(ctx, r.db).Model(&model.Client{}).
		Where("id = ? AND registration_status = ?", client.ID, expectedStatus).
		Select(clientDetailColumns).
		Updates(client)
	if res.Error != nil {
		return fmt.Errorf("failed to update client: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// ApplyStatus writes the denormalised registration status.
func (r *clientRepository) ApplyStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := GetDB(ctx, r.db).Model(&model.Client{}).Where("id = ?", id).Update("registration_status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update client status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatus moves the registration status from one value to another.
// It returns ErrStatusChanged when the row no longer carries from.
func (r *clientRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	res := GetDB(ctx, r.db).Model(&model.Client{}).
		Where("id = ? AND registration_status = ?", id, from).
		Update("registration_status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update client status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *clientRepository) filtered(ctx context.Context, filter ClientFilter) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.Client{})
	if filter.RegistrationStatus != "" {
		query = query.Where("registration_status = ?", filter.RegistrationStatus)
	}
	if filter.Origin != "" {
		query = query.Where("origin = ?", filter.Origin)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("business_name LIKE ? OR fullname LIKE ?", like, like)
	}
	if filter.AddedBy != nil {
		query = query.Where("added_by = ?", *filter.AddedBy)
	}
	return query
}

func (r *clientRepository) List(ctx context.Context, filter ClientFilter, page, limit int) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.filtered(ctx, filter).Order("created_at DESC").Offset(offset).Limit(limit).Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}
