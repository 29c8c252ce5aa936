package service

import (
	"context"
	"errors"
	"strings"

	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientDetails are the business details captured for a client.
type ClientDetails struct {
	Fullname        string `json:"fullname" binding:"required"`
	BusinessName    string `json:"business_name" binding:"required"`
	PhoneNumber     string `json:"phone_number"`
	EmailAddress    string `json:"email_address" binding:"omitempty,email"`
	BusinessAddress string `json:"business_address"`
	StoreType       string `json:"store_type"`
	TermDays        int    `json:"term_days" binding:"gte=0"`
}

type ClientListFilter struct {
	RegistrationStatus string
	Origin             string
	Search             string
	AddedBy            *uuid.UUID
	Page               int
	Limit              int
}

// RegistrationResponse pairs a client with the approval request raised for it.
type RegistrationResponse struct {
	Client  *model.Client  `json:"client"`
	Request *model.Request `json:"request"`
}

type ClientService interface {
	CreateProspect(ctx context.Context, actorID uuid.UUID, details ClientDetails) (*model.Client, error)
	RegisterRegular(ctx context.Context, actorID, clientID uuid.UUID, details ClientDetails) (*RegistrationResponse, error)
	RegisterDirect(ctx context.Context, actorID uuid.UUID, details ClientDetails) (*RegistrationResponse, error)
	GetClient(ctx context.Context, id uuid.UUID) (*model.Client, error)
	ListClients(ctx context.Context, filter ClientListFilter) ([]model.Client, int64, error)
}

type clientService struct {
	tx      repository.TransactionManager
	clients repository.ClientRepository
	engine  *workflow.Engine
	logger  *zap.Logger
}

func NewClientService(tx repository.TransactionManager, clients repository.ClientRepository, engine *workflow.Engine, logger *zap.Logger) ClientService {
	return &clientService{tx: tx, clients: clients, engine: engine, logger: logger}
}

func (d ClientDetails) validate() error {
	if strings.TrimSpace(d.Fullname) == "" || strings.TrimSpace(d.BusinessName) == "" {
		return workflow.Newf(workflow.ErrInvalidInput, "fullname and business name are required")
	}
	if d.TermDays < 0 {
		return workflow.Newf(workflow.ErrInvalidInput, "term days cannot be negative")
	}
	return nil
}

func (d ClientDetails) applyTo(c *model.Client) {
	c.Fullname = strings.TrimSpace(d.Fullname)
	c.BusinessName = strings.TrimSpace(d.BusinessName)
	c.PhoneNumber = d.PhoneNumber
	c.EmailAddress = d.EmailAddress
	c.BusinessAddress = d.BusinessAddress
	c.StoreType = d.StoreType
	c.TermDays = d.TermDays
}

// CreateProspect records a prospect. Prospects start without any approval request.
func (s *clientService) CreateProspect(ctx context.Context, actorID uuid.UUID, details ClientDetails) (*model.Client, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	client := &model.Client{
		Origin:             model.OriginProspecting,
		RegistrationStatus: model.StatusRequested,
		AddedBy:            actorID,
		IsActive:           true,
	}
	details.applyTo(client)

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, err
	}

	s.logger.Info("Prospect created", zap.String("client_id", client.ID.String()), zap.String("added_by", actorID.String()))
	return client, nil
}

// RegisterRegular completes the details of a prospect whose freebies were
// released and opens its regular registration request.
func (s *clientService) RegisterRegular(ctx context.Context, actorID, clientID uuid.UUID, details ClientDetails) (*RegistrationResponse, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	var res RegistrationResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByIDForUpdate(txCtx, clientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return workflow.Newf(workflow.ErrSubjectNotFound, "client %s not found", clientID)
			}
			return err
		}
		if client.RegistrationStatus != model.StatusPendingRegistration {
			return workflow.Newf(workflow.ErrSubjectNotEditable, "client %s is %q, expected %q", clientID, client.RegistrationStatus, model.StatusPendingRegistration)
		}

		details.applyTo(client)
		if err := s.clients.UpdateDetails(txCtx, client, model.StatusPendingRegistration); err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return workflow.Newf(workflow.ErrSubjectNotEditable, "client %s is no longer pending registration", clientID)
			}
			return err
		}

		req, err := s.engine.Open(txCtx, workflow.OpenInput{
			Module:      model.ModuleRegularRegistration,
			SubjectID:   client.ID,
			RequesterID: actorID,
		})
		if err != nil {
			return err
		}

		res.Request = req
		res.Client, err = s.clients.FindByID(txCtx, client.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterDirect creates a client that skips prospecting and opens its
// direct registration request in the same transaction.
func (s *clientService) RegisterDirect(ctx context.Context, actorID uuid.UUID, details ClientDetails) (*RegistrationResponse, error) {
	if err := details.validate(); err != nil {
		return nil, err
	}

	var res RegistrationResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client := &model.Client{
			Origin:             model.OriginDirect,
			RegistrationStatus: model.StatusRequested,
			AddedBy:            actorID,
			IsActive:           true,
		}
		details.applyTo(client)
		if err := s.clients.Create(txCtx, client); err != nil {
			return err
		}

		req, err := s.engine.Open(txCtx, workflow.OpenInput{
			Module:      model.ModuleDirectRegistration,
			SubjectID:   client.ID,
			RequesterID: actorID,
		})
		if err != nil {
			return err
		}

		res.Request = req
		res.Client, err = s.clients.FindByID(txCtx, client.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *clientService) GetClient(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	return s.findClient(ctx, id)
}

func (s *clientService) ListClients(ctx context.Context, filter ClientListFilter) ([]model.Client, int64, error) {
	return s.clients.List(ctx, repository.ClientFilter{
		RegistrationStatus: filter.RegistrationStatus,
		Origin:             filter.Origin,
		Search:             filter.Search,
		AddedBy:            filter.AddedBy,
	}, filter.Page, filter.Limit)
}

func (s *clientService) findClient(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	client, err := s.clients.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrSubjectNotFound, "client %s not found", id)
		}
		return nil, err
	}
	return client, nil
}
