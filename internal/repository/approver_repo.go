package repository

import (
	"context"
	"fmt"

	"arcana/internal/model"

	"gorm.io/gorm"
)

// ApproverRepository reads and replaces the configured approval chain per module.
type ApproverRepository interface {
	ListByModule(ctx context.Context, module model.Module) ([]model.Approver, error)
	ReplaceChain(ctx context.Context, module model.Module, approvers []model.Approver) error
}

type approverRepository struct {
	db *gorm.DB
}

func NewApproverRepository(db *gorm.DB) ApproverRepository {
	return &approverRepository{db: db}
}

func (r *approverRepository) ListByModule(ctx context.Context, module model.Module) ([]model.Approver, error) {
	var approvers []model.Approver
	if err := GetDB(ctx, r.db).Preload("User").
		Where("module = ? AND is_active = ?", module, true).
		Order("level ASC").Order("created_at ASC").
		Find(&approvers).Error; err != nil {
		return nil, fmt.Errorf("failed to list approvers for %s: %w", module, err)
	}
	return approvers, nil
}

// ReplaceChain drops the module's configuration and stores the given rows.
// Requests already opened keep the chain they snapshotted.
func (r *approverRepository) ReplaceChain(ctx context.Context, module model.Module, approvers []model.Approver) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("module = ?", module).Delete(&model.Approver{}).Error; err != nil {
		return fmt.Errorf("failed to clear approvers for %s: %w", module, err)
	}
	if len(approvers) == 0 {
		return nil
	}
	for i := range approvers {
		approvers[i].Module = module
		approvers[i].IsActive = true
	}
	if err := db.Omit("User").Create(&approvers).Error; err != nil {
		return fmt.Errorf("failed to store approvers for %s: %w", module, err)
	}
	return nil
}
