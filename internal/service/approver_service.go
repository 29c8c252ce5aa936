package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ApproverEntry struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Level  int       `json:"level" binding:"required,gt=0"`
}

type ReplaceChainRequest struct {
	Approvers []ApproverEntry `json:"approvers" binding:"required,dive"`
}

type ApproverResponse struct {
	UserID   uuid.UUID    `json:"user_id"`
	Fullname string       `json:"fullname"`
	Username string       `json:"username"`
	Module   model.Module `json:"module"`
	Level    int          `json:"level"`
}

// ApproverService manages the configured approval chain of each module.
// Replacing a chain never alters requests that are already open.
type ApproverService interface {
	ListChain(ctx context.Context, module model.Module) ([]ApproverResponse, error)
	ReplaceChain(ctx context.Context, actorID uuid.UUID, module model.Module, req ReplaceChainRequest) ([]ApproverResponse, error)
}

type approverService struct {
	tx        repository.TransactionManager
	approvers repository.ApproverRepository
	users     repository.UserRepository
	audits    repository.AuditRepository
	logger    *zap.Logger
}

func NewApproverService(tx repository.TransactionManager, approvers repository.ApproverRepository, users repository.UserRepository, audits repository.AuditRepository, logger *zap.Logger) ApproverService {
	return &approverService{tx: tx, approvers: approvers, users: users, audits: audits, logger: logger}
}

func (s *approverService) ListChain(ctx context.Context, module model.Module) ([]ApproverResponse, error) {
	if !module.IsValid() {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "unknown module %q", module)
	}
	rows, err := s.approvers.ListByModule(ctx, module)
	if err != nil {
		return nil, err
	}

	res := make([]ApproverResponse, 0, len(rows))
	for _, r := range rows {
		entry := ApproverResponse{UserID: r.UserID, Module: r.Module, Level: r.Level}
		if r.User != nil {
			entry.Fullname = r.User.Fullname
			entry.Username = r.User.Username
		}
		res = append(res, entry)
	}
	return res, nil
}

func (s *approverService) ReplaceChain(ctx context.Context, actorID uuid.UUID, module model.Module, req ReplaceChainRequest) ([]ApproverResponse, error) {
	if !module.IsValid() {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "unknown module %q", module)
	}
	if len(req.Approvers) == 0 {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "a chain needs at least one approver")
	}

	rows := make([]model.Approver, 0, len(req.Approvers))
	seen := make(map[string]bool, len(req.Approvers))
	for _, entry := range req.Approvers {
		if entry.Level <= 0 {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "levels must be positive")
		}
		key := fmt.Sprintf("%s/%d", entry.UserID, entry.Level)
		if seen[key] {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "user %s is listed twice at level %d", entry.UserID, entry.Level)
		}
		seen[key] = true
		rows = append(rows, model.Approver{UserID: entry.UserID, Module: module, Level: entry.Level, IsActive: true})
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, row := range rows {
			user, err := s.users.GetByID(txCtx, row.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return workflow.Newf(workflow.ErrInvalidInput, "user %s does not exist", row.UserID)
				}
				return err
			}
			if !user.IsActive || user.Role == model.RoleCdo {
				return workflow.Newf(workflow.ErrInvalidInput, "user %s cannot approve", user.Username)
			}
		}

		if err := s.approvers.ReplaceChain(txCtx, module, rows); err != nil {
			return err
		}

		details, _ := json.Marshal(req.Approvers)
		actor := actorID
		return s.audits.Log(txCtx, &model.AuditLog{
			UserID:     &actor,
			Action:     model.ActionReplaceChain,
			EntityID:   string(module),
			EntityName: "Approver",
			Details:    details,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval chain replaced",
		zap.String("module", module.String()),
		zap.Int("approvers", len(rows)),
		zap.String("actor_id", actorID.String()))

	return s.ListChain(ctx, module)
}
