package service

import (
	"context"
	"errors"
	"time"

	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
)

// --- DTOs ---

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=Approve Reject"`
	Reason   string `json:"reason"`
	Level    int    `json:"level" binding:"gte=0"` // level the approver acted on, 0 for the current one
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

type PendingFilter struct {
	Module model.Module
	Page   int
	Limit  int
}

// PendingRequestResponse is one entry of an approver's to-do list.
type PendingRequestResponse struct {
	RequestID     uuid.UUID    `json:"request_id"`
	Module        model.Module `json:"module"`
	SubjectType   string       `json:"subject_type"`
	SubjectID     uuid.UUID    `json:"subject_id"`
	Status        string       `json:"status"`
	CurrentLevel  int          `json:"current_level"`
	RequesterName string       `json:"requester_name"`
	CreatedAt     string       `json:"created_at"`
}

// HistoryEntry is one level of a request's chain as seen in the audit trail.
type HistoryEntry struct {
	Level        int          `json:"level"`
	Module       model.Module `json:"module"`
	ApproverID   *uuid.UUID   `json:"approver_id"`
	ApproverName string       `json:"approver_name"`
	Status       string       `json:"status"`
	IsActive     bool         `json:"is_active"`
	IsApproved   bool         `json:"is_approved"`
	Reason       string       `json:"reason"`
	DecidedAt    *string      `json:"decided_at"`
	CreatedAt    string       `json:"created_at"`
}

// --- Interface ---

type ApprovalService interface {
	Decide(ctx context.Context, requestID, approverID uuid.UUID, req DecisionRequest) (*workflow.Result, error)
	Void(ctx context.Context, requestID, actorID uuid.UUID, isAdmin bool, req VoidRequest) (*workflow.Result, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error)
	ListPending(ctx context.Context, approverID uuid.UUID, filter PendingFilter) ([]PendingRequestResponse, int64, error)
	History(ctx context.Context, requestID uuid.UUID) ([]HistoryEntry, error)
}

type approvalService struct {
	requests repository.RequestRepository
	engine   *workflow.Engine
}

func NewApprovalService(requests repository.RequestRepository, engine *workflow.Engine) ApprovalService {
	return &approvalService{requests: requests, engine: engine}
}

// --- Implementation ---

func (s *approvalService) Decide(ctx context.Context, requestID, approverID uuid.UUID, req DecisionRequest) (*workflow.Result, error) {
	return s.engine.SubmitDecision(ctx, workflow.DecisionInput{
		RequestID:  requestID,
		ApproverID: approverID,
		Decision:   workflow.Decision(req.Decision),
		Reason:     req.Reason,
		Level:      req.Level,
	})
}

func (s *approvalService) Void(ctx context.Context, requestID, actorID uuid.UUID, isAdmin bool, req VoidRequest) (*workflow.Result, error) {
	return s.engine.Void(ctx, workflow.VoidInput{
		RequestID: requestID,
		ActorID:   actorID,
		IsAdmin:   isAdmin,
		Reason:    req.Reason,
	})
}

// GetRequest reads committed state only; it never runs inside a decision transaction.
func (s *approvalService) GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	req, err := s.requests.FindWithChain(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrRequestNotFound, "request %s not found", id)
		}
		return nil, err
	}
	return req, nil
}

func (s *approvalService) ListPending(ctx context.Context, approverID uuid.UUID, filter PendingFilter) ([]PendingRequestResponse, int64, error) {
	if filter.Module != "" && !filter.Module.IsValid() {
		return nil, 0, workflow.Newf(workflow.ErrInvalidInput, "unknown module %q", filter.Module)
	}

	requests, total, err := s.requests.ListPendingForApprover(ctx, approverID, filter.Module, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]PendingRequestResponse, 0, len(requests))
	for _, r := range requests {
		requester := ""
		if r.Requester != nil {
			requester = r.Requester.Fullname
		}
		res = append(res, PendingRequestResponse{
			RequestID:     r.ID,
			Module:        r.Module,
			SubjectType:   string(r.SubjectType),
			SubjectID:     r.SubjectID,
			Status:        r.Status,
			CurrentLevel:  r.CurrentLevel,
			RequesterName: requester,
			CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, total, nil
}

func (s *approvalService) History(ctx context.Context, requestID uuid.UUID) ([]HistoryEntry, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	approvals, err := s.requests.History(ctx, requestID)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(approvals))
	for _, a := range approvals {
		entry := HistoryEntry{
			Level:      a.Level,
			Module:     req.Module,
			ApproverID: a.ApproverID,
			Status:     a.Status,
			IsActive:   a.IsActive,
			IsApproved: a.IsApproved,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339),
		}
		if a.Approver != nil {
			entry.ApproverName = a.Approver.Fullname
		}
		if a.Reason != nil {
			entry.Reason = *a.Reason
		}
		if a.DecidedAt != nil {
			decided := a.DecidedAt.Format(time.RFC3339)
			entry.DecidedAt = &decided
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
