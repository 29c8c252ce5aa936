package workflow

import (
	"context"
	"sort"

	"arcana/internal/model"
	"arcana/internal/repository"

	"github.com/google/uuid"
)

// ChainLevel is one step of a resolved chain. Any listed approver may act on it.
type ChainLevel struct {
	Level       int
	ApproverIDs []uuid.UUID
}

// ChainResolver turns the configured Approver rows of a module into an ordered chain.
type ChainResolver struct {
	approvers repository.ApproverRepository
}

func NewChainResolver(approvers repository.ApproverRepository) *ChainResolver {
	return &ChainResolver{approvers: approvers}
}

// Resolve groups the module's approvers by level, ascending. Configured level
// numbers are renumbered 1..N so the chain has no gaps. A module without any
// approver yields ErrNoApproverConfigured.
func (r *ChainResolver) Resolve(ctx context.Context, module model.Module) ([]ChainLevel, error) {
	if !module.IsValid() {
		return nil, Newf(ErrInvalidInput, "unknown module %q", module)
	}

	rows, err := r.approvers.ListByModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, Newf(ErrNoApproverConfigured, "no approval chain configured for module %q", module)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Level < rows[j].Level })

	var chain []ChainLevel
	lastConfigured := 0
	for i, row := range rows {
		if i == 0 || row.Level != lastConfigured {
			chain = append(chain, ChainLevel{Level: len(chain) + 1})
			lastConfigured = row.Level
		}
		current := &chain[len(chain)-1]
		if !containsID(current.ApproverIDs, row.UserID) {
			current.ApproverIDs = append(current.ApproverIDs, row.UserID)
		}
	}
	return chain, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
