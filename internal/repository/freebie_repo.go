package repository

import (
	"context"
	"fmt"
	"time"

	"arcana/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FreebieFilter struct {
	Status   string
	ClientID *uuid.UUID
}

type FreebieRepository interface {
	Create(ctx context.Context, freebie *model.FreebieRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error)
	HasOpenBatch(ctx context.Context, clientID uuid.UUID) (bool, error)
	AttachRequest(ctx context.Context, id, requestID uuid.UUID) error
	ReplaceItems(ctx context.Context, id uuid.UUID, items []model.FreebieItem) error
	MarkReleased(ctx context.Context, freebie *model.FreebieRequest) error
	ApplyStatus(ctx context.Context, id uuid.UUID, status string) error
	NextTransactionNumber(ctx context.Context) (string, error)
	List(ctx context.Context, filter FreebieFilter, page, limit int) ([]model.FreebieRequest, int64, error)
}

type freebieRepository struct {
	db *gorm.DB
}

func NewFreebieRepository(db *gorm.DB) FreebieRepository {
	return &freebieRepository{db: db}
}

func (r *freebieRepository) Create(ctx context.Context, freebie *model.FreebieRequest) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(freebie).Error; err != nil {
		return fmt.Errorf("failed to create freebie request: %w", err)
	}
	return r.createItems(db, freebie.ID, freebie.Items)
}

func (r *freebieRepository) createItems(db *gorm.DB, freebieID uuid.UUID, items []model.FreebieItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].FreebieRequestID = freebieID
	}
	if err := db.Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create freebie items: %w", err)
	}
	return nil
}

func (r *freebieRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error) {
	var freebie model.FreebieRequest
	if err := GetDB(ctx, r.db).
		Preload("Items").
		Preload("Client").
		Preload("Request").
		First(&freebie, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &freebie, nil
}

// FindByIDForUpdate locks the batch row for the rest of the transaction.
func (r *freebieRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error) {
	var freebie model.FreebieRequest
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Preload("Request").
		Where("id = ?", id).First(&freebie).Error; err != nil {
		return nil, translate(err)
	}
	return &freebie, nil
}

// HasOpenBatch reports whether the client has a batch that is neither
// delivered nor closed by a rejection or void.
func (r *freebieRepository) HasOpenBatch(ctx context.Context, clientID uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.FreebieRequest{}).
		Where("client_id = ? AND is_delivered = ?", clientID, false).
		Where("status NOT IN ?", []string{model.StatusRejected, model.StatusVoided}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *freebieRepository) AttachRequest(ctx context.Context, id, requestID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.FreebieRequest{}).Where("id = ?", id).Update("request_id", requestID).Error
}

func (r *freebieRepository) ReplaceItems(ctx context.Context, id uuid.UUID, items []model.FreebieItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("freebie_request_id = ?", id).Delete(&model.FreebieItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear freebie items: %w", err)
	}
	return r.createItems(db, id, items)
}

// MarkReleased stores delivery proof and flags the request and all of its items delivered.
func (r *freebieRepository) MarkReleased(ctx context.Context, freebie *model.FreebieRequest) error {
	db := GetDB(ctx, r.db)
	res := db.Model(&model.FreebieRequest{}).
		Where("id = ? AND is_delivered = ?", freebie.ID, false).
		Updates(map[string]interface{}{
			"status":           freebie.Status,
			"is_delivered":     true,
			"photo_proof_path": freebie.PhotoProofPath,
			"e_signature_path": freebie.ESignaturePath,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release freebie request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	if err := db.Model(&model.FreebieItem{}).
		Where("freebie_request_id = ?", freebie.ID).
		Update("is_delivered", true).Error; err != nil {
		return fmt.Errorf("failed to mark freebie items delivered: %w", err)
	}
	return nil
}

func (r *freebieRepository) ApplyStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := GetDB(ctx, r.db).Model(&model.FreebieRequest{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update freebie status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextTransactionNumber returns FR-YYYYMMDD-NNNNN for today's next freebie request.
func (r *freebieRepository) NextTransactionNumber(ctx context.Context) (string, error) {
	prefix := "FR-" + time.Now().Format("20060102") + "-"

	var count int64
	if err := GetDB(ctx, r.db).Model(&model.FreebieRequest{}).
		Where("transaction_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

func (r *freebieRepository) filtered(ctx context.Context, filter FreebieFilter) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.FreebieRequest{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	return query
}

func (r *freebieRepository) List(ctx context.Context, filter FreebieFilter, page, limit int) ([]model.FreebieRequest, int64, error) {
	var freebies []model.FreebieRequest
	var total int64

	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.filtered(ctx, filter).
		Preload("Items").Preload("Client").
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&freebies).Error; err != nil {
		return nil, 0, err
	}
	return freebies, total, nil
}
