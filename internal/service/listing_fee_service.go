package service

import (
	"context"
	"errors"

	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ListingFeeItemInput struct {
	ItemID          uuid.UUID       `json:"item_id" binding:"required"`
	ItemCode        string          `json:"item_code"`
	ItemDescription string          `json:"item_description"`
	Uom             string          `json:"uom"`
	Sku             int             `json:"sku" binding:"required,gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost" swaggertype:"string"`
}

type ListingFeeListFilter struct {
	Status            string
	Search            string
	RequestedBy       *uuid.UUID
	CurrentApproverID *uuid.UUID
	Page              int
	Limit             int
}

type ListingFeeService interface {
	RequestListingFee(ctx context.Context, actorID, clientID uuid.UUID, items []ListingFeeItemInput) (*model.ListingFee, error)
	GetListingFee(ctx context.Context, id uuid.UUID) (*model.ListingFee, error)
	ListListingFees(ctx context.Context, filter ListingFeeListFilter) ([]model.ListingFee, int64, error)
}

type listingFeeService struct {
	tx      repository.TransactionManager
	fees    repository.ListingFeeRepository
	clients repository.ClientRepository
	engine  *workflow.Engine
	logger  *zap.Logger
}

func NewListingFeeService(tx repository.TransactionManager, fees repository.ListingFeeRepository, clients repository.ClientRepository, engine *workflow.Engine, logger *zap.Logger) ListingFeeService {
	return &listingFeeService{tx: tx, fees: fees, clients: clients, engine: engine, logger: logger}
}

// RequestListingFee stores the fee for a registered client and opens its approval request.
func (s *listingFeeService) RequestListingFee(ctx context.Context, actorID, clientID uuid.UUID, items []ListingFeeItemInput) (*model.ListingFee, error) {
	if len(items) == 0 {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "at least one item is required")
	}

	total := decimal.Zero
	lines := make([]model.ListingFeeItem, 0, len(items))
	for _, in := range items {
		if in.ItemID == uuid.Nil || in.Sku <= 0 {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "each item needs an item id and a positive sku count")
		}
		if !in.UnitCost.IsPositive() {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "unit cost of item %s must be positive", in.ItemID)
		}
		line := model.ListingFeeItem{
			ItemID:          in.ItemID,
			ItemCode:        in.ItemCode,
			ItemDescription: in.ItemDescription,
			Uom:             in.Uom,
			Sku:             in.Sku,
			UnitCost:        in.UnitCost,
		}
		total = total.Add(line.LineTotal())
		lines = append(lines, line)
	}

	var feeID uuid.UUID
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByID(txCtx, clientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return workflow.Newf(workflow.ErrSubjectNotFound, "client %s not found", clientID)
			}
			return err
		}
		if client.RegistrationStatus != model.StatusApproved {
			return workflow.Newf(workflow.ErrInvalidInput, "listing fees require a registered client")
		}

		fee := &model.ListingFee{
			ClientID:    client.ID,
			Status:      model.StatusRequested,
			Total:       total,
			RequestedBy: actorID,
			IsActive:    true,
			Items:       lines,
		}
		if err := s.fees.Create(txCtx, fee); err != nil {
			return err
		}

		req, err := s.engine.Open(txCtx, workflow.OpenInput{
			Module:      model.ModuleListingFee,
			SubjectID:   fee.ID,
			RequesterID: actorID,
		})
		if err != nil {
			return err
		}
		if err := s.fees.AttachRequest(txCtx, fee.ID, req.ID); err != nil {
			return err
		}
		feeID = fee.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing fee requested",
		zap.String("listing_fee_id", feeID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("total", total.StringFixed(2)))

	return s.GetListingFee(ctx, feeID)
}

func (s *listingFeeService) GetListingFee(ctx context.Context, id uuid.UUID) (*model.ListingFee, error) {
	fee, err := s.fees.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrSubjectNotFound, "listing fee %s not found", id)
		}
		return nil, err
	}
	return fee, nil
}

func (s *listingFeeService) ListListingFees(ctx context.Context, filter ListingFeeListFilter) ([]model.ListingFee, int64, error) {
	return s.fees.List(ctx, repository.ListingFeeFilter{
		Status:            filter.Status,
		Search:            filter.Search,
		RequestedBy:       filter.RequestedBy,
		CurrentApproverID: filter.CurrentApproverID,
	}, filter.Page, filter.Limit)
}
