package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"arcana/internal/media"
	"arcana/internal/metrics"
	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FreebieItemInput struct {
	ItemID          uuid.UUID `json:"item_id" binding:"required"`
	ItemCode        string    `json:"item_code"`
	ItemDescription string    `json:"item_description"`
	Uom             string    `json:"uom"`
	Quantity        int       `json:"quantity" binding:"required,gt=0"`
}

// Evidence is one uploaded file of a release.
type Evidence struct {
	Filename string
	Content  io.Reader
}

type ReleaseInput struct {
	FreebieID  uuid.UUID
	ActorID    uuid.UUID
	PhotoProof Evidence
	ESignature Evidence
}

type FreebieListFilter struct {
	Status   string
	ClientID *uuid.UUID
	Page     int
	Limit    int
}

type FreebieService interface {
	RequestFreebies(ctx context.Context, actorID, clientID uuid.UUID, items []FreebieItemInput) (*model.FreebieRequest, error)
	UpdateFreebieItems(ctx context.Context, actorID, freebieID uuid.UUID, items []FreebieItemInput) (*model.FreebieRequest, error)
	ReleaseFreebies(ctx context.Context, in ReleaseInput) (*model.FreebieRequest, error)
	GetFreebie(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error)
	ListFreebies(ctx context.Context, filter FreebieListFilter) ([]model.FreebieRequest, int64, error)
}

type freebieService struct {
	tx        repository.TransactionManager
	freebies  repository.FreebieRepository
	clients   repository.ClientRepository
	audits    repository.AuditRepository
	engine    *workflow.Engine
	projector *workflow.Projector
	uploader  media.Uploader
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

func NewFreebieService(
	tx repository.TransactionManager,
	freebies repository.FreebieRepository,
	clients repository.ClientRepository,
	audits repository.AuditRepository,
	engine *workflow.Engine,
	projector *workflow.Projector,
	uploader media.Uploader,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) FreebieService {
	return &freebieService{
		tx:        tx,
		freebies:  freebies,
		clients:   clients,
		audits:    audits,
		engine:    engine,
		projector: projector,
		uploader:  uploader,
		metrics:   recorder,
		logger:    logger,
	}
}

func toFreebieItems(items []FreebieItemInput) ([]model.FreebieItem, error) {
	if len(items) == 0 {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "at least one item is required")
	}
	seen := make(map[uuid.UUID]bool, len(items))
	out := make([]model.FreebieItem, 0, len(items))
	for _, in := range items {
		if in.ItemID == uuid.Nil || in.Quantity <= 0 {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "each item needs an item id and a positive quantity")
		}
		if seen[in.ItemID] {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "item %s is listed twice", in.ItemID)
		}
		seen[in.ItemID] = true
		out = append(out, model.FreebieItem{
			ItemID:          in.ItemID,
			ItemCode:        in.ItemCode,
			ItemDescription: in.ItemDescription,
			Uom:             in.Uom,
			Quantity:        in.Quantity,
		})
	}
	return out, nil
}

// RequestFreebies stores the freebie batch for a prospect and opens its approval request.
func (s *freebieService) RequestFreebies(ctx context.Context, actorID, clientID uuid.UUID, items []FreebieItemInput) (*model.FreebieRequest, error) {
	lines, err := toFreebieItems(items)
	if err != nil {
		return nil, err
	}

	var freebieID uuid.UUID
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		client, err := s.clients.FindByIDForUpdate(txCtx, clientID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return workflow.Newf(workflow.ErrSubjectNotFound, "client %s not found", clientID)
			}
			return err
		}
		if client.Origin != model.OriginProspecting {
			return workflow.Newf(workflow.ErrInvalidInput, "freebies can only be requested for prospects")
		}
		if client.RegistrationStatus != model.StatusRequested {
			return workflow.Newf(workflow.ErrSubjectNotEditable, "client %s is %q, freebies are only requested for %q prospects", clientID, client.RegistrationStatus, model.StatusRequested)
		}
		open, err := s.freebies.HasOpenBatch(txCtx, client.ID)
		if err != nil {
			return err
		}
		if open {
			return workflow.Newf(workflow.ErrSubjectNotEditable, "client %s already has a freebie request in progress", clientID)
		}

		number, err := s.freebies.NextTransactionNumber(txCtx)
		if err != nil {
			return err
		}
		freebie := &model.FreebieRequest{
			ClientID:          client.ID,
			TransactionNumber: number,
			Status:            model.StatusRequested,
			RequestedBy:       actorID,
			Items:             lines,
		}
		if err := s.freebies.Create(txCtx, freebie); err != nil {
			return err
		}

		req, err := s.engine.Open(txCtx, workflow.OpenInput{
			Module:      model.ModuleFreebie,
			SubjectID:   freebie.ID,
			RequesterID: actorID,
		})
		if err != nil {
			return err
		}
		if err := s.freebies.AttachRequest(txCtx, freebie.ID, req.ID); err != nil {
			return err
		}
		freebieID = freebie.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFreebie(ctx, freebieID)
}

// UpdateFreebieItems replaces the items of a batch while its request is still under review.
func (s *freebieService) UpdateFreebieItems(ctx context.Context, actorID, freebieID uuid.UUID, items []FreebieItemInput) (*model.FreebieRequest, error) {
	lines, err := toFreebieItems(items)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		// terminal decisions project onto this row, so the lock orders this
		// edit against them
		freebie, err := s.freebies.FindByIDForUpdate(txCtx, freebieID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return workflow.Newf(workflow.ErrSubjectNotFound, "freebie request %s not found", freebieID)
			}
			return err
		}
		if freebie.RequestedBy != actorID {
			return workflow.Newf(workflow.ErrNotCurrentApprover, "only the requester can edit freebie request %s", freebieID)
		}
		if freebie.Status != model.StatusForFreebieApproval || freebie.Request == nil || freebie.Request.Status != model.StatusUnderReview {
			return workflow.Newf(workflow.ErrSubjectNotEditable, "freebie request %s is no longer under review", freebieID)
		}
		return s.freebies.ReplaceItems(txCtx, freebieID, lines)
	})
	if err != nil {
		return nil, err
	}
	return s.GetFreebie(ctx, freebieID)
}

// ReleaseFreebies records delivery of an approved batch. Both files are
// uploaded before anything is written; if either upload fails the batch is
// left untouched and the caller may retry.
func (s *freebieService) ReleaseFreebies(ctx context.Context, in ReleaseInput) (*model.FreebieRequest, error) {
	if in.PhotoProof.Content == nil || in.ESignature.Content == nil {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "photo proof and e-signature are required")
	}

	freebie, err := s.findFreebie(ctx, in.FreebieID)
	if err != nil {
		return nil, err
	}
	if err := checkReleasable(freebie); err != nil {
		return nil, err
	}

	owner := freebie.ID.String()
	photoURL, err := s.uploader.Upload(ctx, media.Key("freebies", owner, "photo-proof", in.PhotoProof.Filename), in.PhotoProof.Content)
	if err != nil {
		return nil, s.uploadFailed(freebie.ID, "photo proof", err)
	}
	signatureURL, err := s.uploader.Upload(ctx, media.Key("freebies", owner, "e-signature", in.ESignature.Filename), in.ESignature.Content)
	if err != nil {
		return nil, s.uploadFailed(freebie.ID, "e-signature", err)
	}

	releasedStatus, err := s.projector.StatusFor(model.ModuleFreebie, workflow.OutcomeReleased)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.findFreebie(txCtx, in.FreebieID)
		if err != nil {
			return err
		}
		if err := checkReleasable(current); err != nil {
			return err
		}

		current.Status = releasedStatus
		current.PhotoProofPath = photoURL
		current.ESignaturePath = signatureURL
		if err := s.freebies.MarkReleased(txCtx, current); err != nil {
			if errors.Is(err, repository.ErrAlreadyResolved) {
				return workflow.Newf(workflow.ErrSubjectNotEditable, "freebie request %s was already released", current.ID)
			}
			return err
		}

		if err := s.clients.TransitionStatus(txCtx, current.ClientID, model.StatusRequested, model.StatusPendingRegistration); err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return workflow.Newf(workflow.ErrSubjectNotEditable, "client %s is no longer awaiting freebies", current.ClientID)
			}
			return err
		}

		details, _ := json.Marshal(map[string]interface{}{
			"transaction_number": current.TransactionNumber,
			"items":              len(current.Items),
			"photo_proof":        photoURL,
			"e_signature":        signatureURL,
		})
		actor := in.ActorID
		if err := s.audits.Log(txCtx, &model.AuditLog{
			UserID:     &actor,
			Action:     model.ActionReleaseFreebies,
			EntityID:   current.ID.String(),
			EntityName: string(model.SubjectFreebieRequest),
			Details:    details,
		}); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	released, err := s.GetFreebie(ctx, in.FreebieID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Freebies released",
		zap.String("freebie_id", released.ID.String()),
		zap.String("client_id", released.ClientID.String()),
		zap.Int("items", len(released.Items)))

	event := workflow.Event{
		Type:          workflow.EventFreebieReleased,
		Module:        model.ModuleFreebie.String(),
		SubjectID:     released.ID,
		Status:        model.StatusApproved,
		SubjectStatus: released.Status,
		ActorID:       in.ActorID,
		At:            released.UpdatedAt,
	}
	if released.RequestID != nil {
		event.RequestID = *released.RequestID
	}
	s.engine.Publish(event)

	return released, nil
}

func checkReleasable(freebie *model.FreebieRequest) error {
	if freebie.IsDelivered {
		return workflow.Newf(workflow.ErrSubjectNotEditable, "freebie request %s was already released", freebie.ID)
	}
	if freebie.Request == nil || freebie.Request.Status != model.StatusApproved {
		return workflow.Newf(workflow.ErrSubjectNotEditable, "freebie request %s is not approved", freebie.ID)
	}
	return nil
}

func (s *freebieService) uploadFailed(freebieID uuid.UUID, what string, err error) error {
	s.metrics.RecordUploadFailure()
	s.logger.Error("Release upload failed",
		zap.String("freebie_id", freebieID.String()),
		zap.String("file", what),
		zap.Error(err))
	return workflow.Wrap(workflow.ErrMediaUpload, fmt.Errorf("%s upload: %w", what, err))
}

func (s *freebieService) GetFreebie(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error) {
	return s.findFreebie(ctx, id)
}

func (s *freebieService) ListFreebies(ctx context.Context, filter FreebieListFilter) ([]model.FreebieRequest, int64, error) {
	return s.freebies.List(ctx, repository.FreebieFilter{
		Status:   filter.Status,
		ClientID: filter.ClientID,
	}, filter.Page, filter.Limit)
}

func (s *freebieService) findFreebie(ctx context.Context, id uuid.UUID) (*model.FreebieRequest, error) {
	freebie, err := s.freebies.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrSubjectNotFound, "freebie request %s not found", id)
		}
		return nil, err
	}
	return freebie, nil
}
