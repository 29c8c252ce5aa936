package service

import (
	"context"
	"time"

	"arcana/internal/model"
	"arcana/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
	GetEntityLogs(ctx context.Context, entityID string) ([]AuditLogResponse, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs retrieves paginated records, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return mapAuditLogs(logs), total, nil
}

// GetEntityLogs returns every transition recorded for one request or subject
func (s *auditService) GetEntityLogs(ctx context.Context, entityID string) ([]AuditLogResponse, error) {
	logs, err := s.repo.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return mapAuditLogs(logs), nil
}

func mapAuditLogs(logs []model.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    string(l.Details),
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}
	return res
}
