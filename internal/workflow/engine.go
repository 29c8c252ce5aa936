package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arcana/internal/metrics"
	"arcana/internal/model"
	"arcana/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Decision is an approver's verdict on the current level.
type Decision string

const (
	DecisionApprove Decision = "Approve"
	DecisionReject  Decision = "Reject"
)

// OpenInput starts a request for a subject that already exists.
type OpenInput struct {
	Module      model.Module
	SubjectID   uuid.UUID
	RequesterID uuid.UUID
}

// DecisionInput carries an approver's decision. Level, when set, is the level
// the approver saw; a decision aimed at an already resolved level is refused
// even if the approver is also a candidate further up the chain.
type DecisionInput struct {
	RequestID  uuid.UUID
	ApproverID uuid.UUID
	Decision   Decision
	Reason     string
	Level      int
}

// VoidInput withdraws an in-flight request. Admins may void any request.
type VoidInput struct {
	RequestID uuid.UUID
	ActorID   uuid.UUID
	IsAdmin   bool
	Reason    string
}

// Result is the request state after a committed transition.
type Result struct {
	RequestID         uuid.UUID    `json:"request_id"`
	Module            model.Module `json:"module"`
	SubjectID         uuid.UUID    `json:"subject_id"`
	Status            string       `json:"status"`
	CurrentLevel      int          `json:"current_level"`
	CurrentApproverID *uuid.UUID   `json:"current_approver_id"`
	SubjectStatus     string       `json:"subject_status,omitempty"`
	Final             bool         `json:"final"`
}

// Engine is the approval state machine. Each transition runs in one
// transaction covering the approval row, the request row, the subject status
// and the audit entry.
type Engine struct {
	tx        repository.TransactionManager
	requests  repository.RequestRepository
	audits    repository.AuditRepository
	resolver  *ChainResolver
	projector *Projector
	logger    *zap.Logger
	metrics   *metrics.Recorder
	publisher Publisher
	now       func() time.Time
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	tx repository.TransactionManager,
	requests repository.RequestRepository,
	audits repository.AuditRepository,
	resolver *ChainResolver,
	projector *Projector,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		tx:        tx,
		requests:  requests,
		audits:    audits,
		resolver:  resolver,
		projector: projector,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open resolves the module's chain and persists the request with every level
// in Pending. Nothing is written when the chain cannot be resolved. When ctx
// already carries a transaction the request joins it.
func (e *Engine) Open(ctx context.Context, in OpenInput) (*model.Request, error) {
	if in.SubjectID == uuid.Nil || in.RequesterID == uuid.Nil {
		return nil, Newf(ErrInvalidInput, "subject and requester are required")
	}

	chain, err := e.resolver.Resolve(ctx, in.Module)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		Module:       in.Module,
		SubjectType:  model.SubjectTypeOf(in.Module),
		SubjectID:    in.SubjectID,
		Status:       model.StatusUnderReview,
		RequesterID:  in.RequesterID,
		CurrentLevel: chain[0].Level,
		Version:      1,
	}
	for _, level := range chain {
		approval := model.Approval{
			Level:    level.Level,
			Status:   model.ApprovalPending,
			IsActive: true,
		}
		if len(level.ApproverIDs) == 1 {
			only := level.ApproverIDs[0]
			approval.ApproverID = &only
		}
		for pos, id := range level.ApproverIDs {
			approval.Candidates = append(approval.Candidates, model.ApprovalCandidate{ApproverID: id, Position: pos})
		}
		req.Approvals = append(req.Approvals, approval)
	}
	first := chain[0].ApproverIDs[0]
	req.CurrentApproverID = &first

	var subjectStatus string
	err = e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := e.requests.Create(txCtx, req); err != nil {
			return err
		}
		status, err := e.projector.Project(txCtx, req.Module, req.SubjectID, OutcomeOpened)
		if err != nil {
			return err
		}
		subjectStatus = status
		return e.audit(txCtx, in.RequesterID, model.ActionOpenRequest, req, map[string]interface{}{
			"subject_id":     req.SubjectID,
			"levels":         len(chain),
			"subject_status": subjectStatus,
		})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordOpened(req.Module.String())
	e.logger.Info("Approval request opened",
		zap.String("request_id", req.ID.String()),
		zap.String("module", req.Module.String()),
		zap.String("subject_id", req.SubjectID.String()),
		zap.Int("levels", len(chain)))

	return req, nil
}

// SubmitDecision applies an approver's decision to the request's current
// level. A concurrent write to the request is retried once against fresh
// state; a second conflict surfaces as ErrStaleState.
func (e *Engine) SubmitDecision(ctx context.Context, in DecisionInput) (*Result, error) {
	started := e.now()
	in.Reason = strings.TrimSpace(in.Reason)

	switch in.Decision {
	case DecisionApprove:
	case DecisionReject:
		if in.Reason == "" {
			return nil, ErrMissingReason
		}
	default:
		return nil, Newf(ErrInvalidDecision, "decision must be Approve or Reject, got %q", in.Decision)
	}

	var (
		result *Result
		event  *Event
	)
	err := e.withRetry(ctx, "decision", func() error {
		var err error
		result, event, err = e.applyDecision(ctx, in)
		return err
	})

	module := ""
	if result != nil {
		module = result.Module.String()
	}
	e.metrics.RecordDecision(module, string(in.Decision), resultLabel(err), started)

	if err != nil {
		e.logger.Warn("Decision rejected",
			zap.String("request_id", in.RequestID.String()),
			zap.String("approver_id", in.ApproverID.String()),
			zap.String("decision", string(in.Decision)),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Decision applied",
		zap.String("request_id", result.RequestID.String()),
		zap.String("approver_id", in.ApproverID.String()),
		zap.String("decision", string(in.Decision)),
		zap.String("status", result.Status),
		zap.Int("current_level", result.CurrentLevel))

	if result.Final {
		e.metrics.RecordClosed(module, result.Status)
	}
	e.publish(event)
	return result, nil
}

func (e *Engine) applyDecision(ctx context.Context, in DecisionInput) (*Result, *Event, error) {
	var (
		result *Result
		event  *Event
	)
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := e.load(txCtx, in.RequestID)
		if err != nil {
			return err
		}

		current := req.CurrentApproval()
		if current == nil {
			return Newf(ErrRequestAlreadyClosed, "request %s has no pending level", req.ID)
		}
		if in.Level == 0 && candidateLevels(req, in.ApproverID) > 1 {
			return Newf(ErrInvalidInput, "user %s approves more than one level of request %s: level is required", in.ApproverID, req.ID)
		}
		if in.Level > 0 && in.Level < current.Level {
			return Newf(ErrLevelAlreadyResolved, "level %d of request %s already resolved", in.Level, req.ID)
		}
		if in.Level > current.Level {
			return Newf(ErrNotCurrentApprover, "level %d of request %s is not open yet", in.Level, req.ID)
		}
		if !current.HasCandidate(in.ApproverID) {
			if actedOnResolvedLevel(req, in.ApproverID) {
				return Newf(ErrLevelAlreadyResolved, "level of request %s already resolved", req.ID)
			}
			return Newf(ErrNotCurrentApprover, "user %s cannot act on level %d of request %s", in.ApproverID, current.Level, req.ID)
		}

		now := e.now()
		actor := in.ApproverID
		current.ApproverID = &actor
		current.DecidedAt = &now

		var (
			outcome Outcome
			action  string
		)
		details := map[string]interface{}{
			"level":    current.Level,
			"decision": in.Decision,
		}

		switch in.Decision {
		case DecisionReject:
			reason := in.Reason
			current.Status = model.ApprovalRejected
			current.IsApproved = false
			current.Reason = &reason
			if err := e.resolve(txCtx, current); err != nil {
				return err
			}
			if _, err := e.requests.DeactivatePending(txCtx, req.ID, current.Level); err != nil {
				return err
			}
			req.Status = model.StatusRejected
			req.CurrentApproverID = nil
			outcome = OutcomeRejected
			action = model.ActionRejectRequest
			details["reason"] = reason

		case DecisionApprove:
			current.Status = model.ApprovalApproved
			current.IsApproved = true
			if err := e.resolve(txCtx, current); err != nil {
				return err
			}
			if current.Level >= req.MaxLevel() {
				req.Status = model.StatusApproved
				req.CurrentApproverID = nil
				outcome = OutcomeApproved
				action = model.ActionApproveRequest
			} else {
				next := req.ApprovalAt(current.Level + 1)
				if next == nil || len(next.Candidates) == 0 {
					return fmt.Errorf("request %s has no approver at level %d", req.ID, current.Level+1)
				}
				nextApprover := next.Candidates[0].ApproverID
				req.CurrentLevel = next.Level
				req.CurrentApproverID = &nextApprover
				action = model.ActionApproveLevel
				details["next_level"] = next.Level
			}
		}

		if err := e.updateState(txCtx, req); err != nil {
			return err
		}

		subjectStatus := ""
		if outcome != "" {
			subjectStatus, err = e.projector.Project(txCtx, req.Module, req.SubjectID, outcome)
			if err != nil {
				return err
			}
			details["subject_status"] = subjectStatus
		}

		if err := e.audit(txCtx, in.ApproverID, action, req, details); err != nil {
			return err
		}

		result = newResult(req, subjectStatus)
		event = newEvent(eventTypeFor(in.Decision, outcome), result, in.ApproverID, now)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, event, nil
}

// Void withdraws a request that is still under review. Pending levels are
// deactivated and the subject is marked Voided.
func (e *Engine) Void(ctx context.Context, in VoidInput) (*Result, error) {
	in.Reason = strings.TrimSpace(in.Reason)

	var (
		result *Result
		event  *Event
	)
	err := e.withRetry(ctx, "void", func() error {
		return e.tx.RunInTx(ctx, func(txCtx context.Context) error {
			req, err := e.load(txCtx, in.RequestID)
			if err != nil {
				return err
			}
			if !in.IsAdmin && !isChainMember(req, in.ActorID) {
				return Newf(ErrNotCurrentApprover, "user %s cannot void request %s", in.ActorID, req.ID)
			}

			if _, err := e.requests.DeactivatePending(txCtx, req.ID, 0); err != nil {
				return err
			}
			req.Status = model.StatusVoided
			req.CurrentApproverID = nil
			if err := e.updateState(txCtx, req); err != nil {
				return err
			}

			subjectStatus, err := e.projector.Project(txCtx, req.Module, req.SubjectID, OutcomeVoided)
			if err != nil {
				return err
			}
			if err := e.audit(txCtx, in.ActorID, model.ActionVoidRequest, req, map[string]interface{}{
				"reason":         in.Reason,
				"subject_status": subjectStatus,
			}); err != nil {
				return err
			}

			result = newResult(req, subjectStatus)
			event = newEvent(EventRequestVoided, result, in.ActorID, e.now())
			return nil
		})
	})
	if err != nil {
		e.logger.Warn("Void rejected",
			zap.String("request_id", in.RequestID.String()),
			zap.String("actor_id", in.ActorID.String()),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Approval request voided",
		zap.String("request_id", result.RequestID.String()),
		zap.String("actor_id", in.ActorID.String()))
	e.metrics.RecordClosed(result.Module.String(), result.Status)
	e.publish(event)
	return result, nil
}

// Publish forwards a committed transition recorded outside the engine.
func (e *Engine) Publish(event Event) {
	e.publish(&event)
}

func (e *Engine) withRetry(ctx context.Context, operation string, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrStaleState) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	e.metrics.RecordStaleRetry(operation)
	e.logger.Debug("Retrying after concurrent write", zap.String("operation", operation))
	return fn()
}

// load fetches the request with its chain and rejects terminal requests.
func (e *Engine) load(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	req, err := e.requests.FindWithChain(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Newf(ErrRequestNotFound, "request %s not found", id)
		}
		return nil, err
	}
	if req.IsTerminal() {
		return nil, Newf(ErrRequestAlreadyClosed, "request %s is already %s", id, req.Status)
	}
	return req, nil
}

func (e *Engine) resolve(ctx context.Context, approval *model.Approval) error {
	err := e.requests.ResolveApproval(ctx, approval)
	if errors.Is(err, repository.ErrAlreadyResolved) {
		return Newf(ErrLevelAlreadyResolved, "level %d already resolved", approval.Level)
	}
	return err
}

func (e *Engine) updateState(ctx context.Context, req *model.Request) error {
	err := e.requests.UpdateState(ctx, req)
	if errors.Is(err, repository.ErrStaleWrite) {
		return Wrap(ErrStaleState, err)
	}
	return err
}

func (e *Engine) audit(ctx context.Context, actorID uuid.UUID, action string, req *model.Request, details map[string]interface{}) error {
	details["module"] = req.Module
	details["status"] = req.Status
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	actor := actorID
	entry := &model.AuditLog{
		UserID:     &actor,
		Action:     action,
		EntityID:   req.ID.String(),
		EntityName: req.Module.String(),
		Details:    raw,
	}
	if err := e.audits.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (e *Engine) publish(event *Event) {
	if e.publisher == nil || event == nil {
		return
	}
	e.publisher.Publish(*event)
}

// actedOnResolvedLevel reports whether userID belonged to a level that is no
// longer pending, i.e. the caller lost a race or is replaying a decision.
func actedOnResolvedLevel(req *model.Request, userID uuid.UUID) bool {
	for i := range req.Approvals {
		a := &req.Approvals[i]
		if a.Status == model.ApprovalPending {
			continue
		}
		if a.HasCandidate(userID) || (a.ApproverID != nil && *a.ApproverID == userID) {
			return true
		}
	}
	return false
}

// candidateLevels counts the levels of req on which userID is eligible.
func candidateLevels(req *model.Request, userID uuid.UUID) int {
	n := 0
	for i := range req.Approvals {
		if req.Approvals[i].IsActive && req.Approvals[i].HasCandidate(userID) {
			n++
		}
	}
	return n
}

func isChainMember(req *model.Request, userID uuid.UUID) bool {
	for i := range req.Approvals {
		if req.Approvals[i].IsActive && req.Approvals[i].HasCandidate(userID) {
			return true
		}
	}
	return false
}

func newResult(req *model.Request, subjectStatus string) *Result {
	return &Result{
		RequestID:         req.ID,
		Module:            req.Module,
		SubjectID:         req.SubjectID,
		Status:            req.Status,
		CurrentLevel:      req.CurrentLevel,
		CurrentApproverID: req.CurrentApproverID,
		SubjectStatus:     subjectStatus,
		Final:             req.IsTerminal(),
	}
}

func newEvent(eventType string, r *Result, actorID uuid.UUID, at time.Time) *Event {
	return &Event{
		Type:              eventType,
		RequestID:         r.RequestID,
		Module:            r.Module.String(),
		SubjectID:         r.SubjectID,
		Status:            r.Status,
		SubjectStatus:     r.SubjectStatus,
		CurrentLevel:      r.CurrentLevel,
		CurrentApproverID: r.CurrentApproverID,
		ActorID:           actorID,
		At:                at,
	}
}

func eventTypeFor(decision Decision, outcome Outcome) string {
	switch {
	case decision == DecisionReject:
		return EventRequestRejected
	case outcome == OutcomeApproved:
		return EventRequestApproved
	default:
		return EventLevelApproved
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Code
	}
	return "error"
}
