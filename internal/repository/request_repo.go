package repository

import (
	"context"
	"fmt"

	"arcana/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository persists workflow Requests together with their approval chain.
type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindWithChain(ctx context.Context, id uuid.UUID) (*model.Request, error)
	ResolveApproval(ctx context.Context, approval *model.Approval) error
	DeactivatePending(ctx context.Context, requestID uuid.UUID, aboveLevel int) (int64, error)
	UpdateState(ctx context.Context, req *model.Request) error
	ListPendingForApprover(ctx context.Context, approverID uuid.UUID, module model.Module, page, limit int) ([]model.Request, int64, error)
	History(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

// Create inserts the request row, then every level and its candidates.
func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	db := GetDB(ctx, r.db)
	if err := db.Omit(clause.Associations).Create(req).Error; err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for i := range req.Approvals {
		approval := &req.Approvals[i]
		approval.RequestID = req.ID
		if err := db.Omit(clause.Associations).Create(approval).Error; err != nil {
			return fmt.Errorf("failed to create approval level %d: %w", approval.Level, err)
		}
		for j := range approval.Candidates {
			approval.Candidates[j].ApprovalID = approval.ID
		}
		if len(approval.Candidates) > 0 {
			if err := db.Create(&approval.Candidates).Error; err != nil {
				return fmt.Errorf("failed to create candidates for level %d: %w", approval.Level, err)
			}
		}
	}
	return nil
}

func (r *requestRepository) FindWithChain(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	err := GetDB(ctx, r.db).
		Preload("Approvals", func(db *gorm.DB) *gorm.DB { return db.Order("level ASC") }).
		Preload("Approvals.Candidates", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// ResolveApproval records a decision on a level. Only a pending, active row is
// updated so the first writer for a level wins.
func (r *requestRepository) ResolveApproval(ctx context.Context, approval *model.Approval) error {
	res := GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("id = ? AND status = ? AND is_active = ?", approval.ID, model.ApprovalPending, true).
		Updates(map[string]interface{}{
			"status":      approval.Status,
			"is_approved": approval.IsApproved,
			"approver_id": approval.ApproverID,
			"reason":      approval.Reason,
			"decided_at":  approval.DecidedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve approval: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// DeactivatePending supersedes pending levels above aboveLevel. Rows are kept for audit.
func (r *requestRepository) DeactivatePending(ctx context.Context, requestID uuid.UUID, aboveLevel int) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Approval{}).
		Where("request_id = ? AND level > ? AND status = ? AND is_active = ?", requestID, aboveLevel, model.ApprovalPending, true).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate pending approvals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateState writes status and pointer fields if the version still matches,
// then bumps req.Version.
func (r *requestRepository) UpdateState(ctx context.Context, req *model.Request) error {
	res := GetDB(ctx, r.db).Model(&model.Request{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(map[string]interface{}{
			"status":              req.Status,
			"current_approver_id": req.CurrentApproverID,
			"current_level":       req.CurrentLevel,
			"version":             req.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	req.Version++
	return nil
}

func (r *requestRepository) pendingForApprover(ctx context.Context, approverID uuid.UUID, module model.Module) *gorm.DB {
	query := GetDB(ctx, r.db).Model(&model.Request{}).
		Joins("JOIN approvals ON approvals.request_id = requests.id AND approvals.level = requests.current_level").
		Joins("JOIN approval_candidates ON approval_candidates.approval_id = approvals.id").
		Where("approvals.is_active = ? AND approvals.status = ?", true, model.ApprovalPending).
		Where("approval_candidates.approver_id = ? AND requests.status = ?", approverID, model.StatusUnderReview)
	if module != "" {
		query = query.Where("requests.module = ?", module)
	}
	return query
}

func (r *requestRepository) ListPendingForApprover(ctx context.Context, approverID uuid.UUID, module model.Module, page, limit int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	if err := r.pendingForApprover(ctx, approverID, module).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := r.pendingForApprover(ctx, approverID, module).
		Select("requests.*").
		Preload("Requester").
		Order("requests.created_at ASC").
		Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) History(ctx context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := GetDB(ctx, r.db).Preload("Approver").
		Where("request_id = ?", requestID).
		Order("level ASC").
		Find(&approvals).Error; err != nil {
		return nil, err
	}
	return approvals, nil
}
