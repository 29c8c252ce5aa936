package workflow

import (
	"context"
	"sort"
	"sync"

	"arcana/internal/model"
	"arcana/internal/repository"

	"github.com/google/uuid"
)

type txMarker struct{}

// memStore is an in-memory entity store. Transactions are serialized and
// rolled back from a snapshot when the callback fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	requests  map[uuid.UUID]model.Request
	approvals map[uuid.UUID]model.Approval
	approvers []model.Approver
	subjects  map[uuid.UUID]string
	audits    []model.AuditLog

	// staleWrites makes the next n UpdateState calls report a concurrent write.
	staleWrites int
	creates     int
}

func newMemStore() *memStore {
	return &memStore{
		requests:  map[uuid.UUID]model.Request{},
		approvals: map[uuid.UUID]model.Approval{},
		subjects:  map[uuid.UUID]string{},
	}
}

type memSnapshot struct {
	requests  map[uuid.UUID]model.Request
	approvals map[uuid.UUID]model.Approval
	subjects  map[uuid.UUID]string
	audits    []model.AuditLog
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		requests:  make(map[uuid.UUID]model.Request, len(s.requests)),
		approvals: make(map[uuid.UUID]model.Approval, len(s.approvals)),
		subjects:  make(map[uuid.UUID]string, len(s.subjects)),
		audits:    append([]model.AuditLog(nil), s.audits...),
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	for k, v := range s.approvals {
		snap.approvals[k] = v
	}
	for k, v := range s.subjects {
		snap.subjects[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snap.requests
	s.approvals = snap.approvals
	s.subjects = snap.subjects
	s.audits = snap.audits
}

func (s *memStore) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// RequestRepository

func (s *memStore) Create(_ context.Context, req *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	stored := *req
	stored.Approvals = nil
	s.requests[req.ID] = stored
	for i := range req.Approvals {
		a := &req.Approvals[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.RequestID = req.ID
		for j := range a.Candidates {
			a.Candidates[j].ID = uuid.New()
			a.Candidates[j].ApprovalID = a.ID
		}
		copied := *a
		copied.Candidates = append([]model.ApprovalCandidate(nil), a.Candidates...)
		s.approvals[a.ID] = copied
	}
	return nil
}

func (s *memStore) FindWithChain(_ context.Context, id uuid.UUID) (*model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	req := stored
	req.Approvals = s.chainLocked(id)
	return &req, nil
}

func (s *memStore) chainLocked(requestID uuid.UUID) []model.Approval {
	var chain []model.Approval
	for _, a := range s.approvals {
		if a.RequestID != requestID {
			continue
		}
		copied := a
		copied.Candidates = append([]model.ApprovalCandidate(nil), a.Candidates...)
		sort.Slice(copied.Candidates, func(i, j int) bool { return copied.Candidates[i].Position < copied.Candidates[j].Position })
		chain = append(chain, copied)
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Level < chain[j].Level })
	return chain
}

func (s *memStore) ResolveApproval(_ context.Context, approval *model.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.approvals[approval.ID]
	if !ok || stored.Status != model.ApprovalPending || !stored.IsActive {
		return repository.ErrAlreadyResolved
	}
	stored.Status = approval.Status
	stored.IsApproved = approval.IsApproved
	stored.ApproverID = approval.ApproverID
	stored.Reason = approval.Reason
	stored.DecidedAt = approval.DecidedAt
	s.approvals[approval.ID] = stored
	return nil
}

func (s *memStore) DeactivatePending(_ context.Context, requestID uuid.UUID, aboveLevel int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.approvals {
		if a.RequestID == requestID && a.Level > aboveLevel && a.Status == model.ApprovalPending && a.IsActive {
			a.IsActive = false
			s.approvals[id] = a
			n++
		}
	}
	return n, nil
}

func (s *memStore) UpdateState(_ context.Context, req *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleWrites > 0 {
		s.staleWrites--
		return repository.ErrStaleWrite
	}
	stored, ok := s.requests[req.ID]
	if !ok || stored.Version != req.Version {
		return repository.ErrStaleWrite
	}
	stored.Status = req.Status
	stored.CurrentApproverID = req.CurrentApproverID
	stored.CurrentLevel = req.CurrentLevel
	stored.Version = req.Version + 1
	s.requests[req.ID] = stored
	req.Version++
	return nil
}

func (s *memStore) ListPendingForApprover(_ context.Context, approverID uuid.UUID, module model.Module, page, limit int) ([]model.Request, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Request
	for id, req := range s.requests {
		if req.Status != model.StatusUnderReview || (module != "" && req.Module != module) {
			continue
		}
		for _, a := range s.chainLocked(id) {
			if a.Level == req.CurrentLevel && a.IsActive && a.Status == model.ApprovalPending && a.HasCandidate(approverID) {
				out = append(out, req)
			}
		}
	}
	return out, int64(len(out)), nil
}

func (s *memStore) History(_ context.Context, requestID uuid.UUID) ([]model.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainLocked(requestID), nil
}

// ApproverRepository

func (s *memStore) ListByModule(_ context.Context, module model.Module) ([]model.Approver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Approver
	for _, a := range s.approvers {
		if a.Module == module && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ReplaceChain(_ context.Context, module model.Module, approvers []model.Approver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.approvers[:0]
	for _, a := range s.approvers {
		if a.Module != module {
			kept = append(kept, a)
		}
	}
	s.approvers = append(kept, approvers...)
	return nil
}

// AuditRepository

func (s *memStore) Log(_ context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *entry)
	return nil
}

func (s *memStore) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.audits...), int64(len(s.audits)), nil
}

func (s *memStore) ListByEntity(_ context.Context, entityID string) ([]model.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditLog
	for _, a := range s.audits {
		if a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

// subjectWriter stores subject statuses for one subject type.
type subjectWriter struct {
	store *memStore
	calls int
}

func (w *subjectWriter) ApplyStatus(_ context.Context, id uuid.UUID, status string) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if _, ok := w.store.subjects[id]; !ok {
		return repository.ErrNotFound
	}
	w.store.subjects[id] = status
	w.calls++
	return nil
}

// helpers

func (s *memStore) addApprover(module model.Module, level int, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvers = append(s.approvers, model.Approver{
		ID:       uuid.New(),
		UserID:   userID,
		Module:   module,
		Level:    level,
		IsActive: true,
	})
}

func (s *memStore) addSubject(status string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.subjects[id] = status
	return id
}

func (s *memStore) subjectStatus(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subjects[id]
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
