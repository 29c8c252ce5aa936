package workflow

import (
	"context"
	"errors"
	"fmt"

	"arcana/internal/model"
	"arcana/internal/repository"

	"github.com/google/uuid"
)

// Outcome is what happened to a Request, as seen by its subject.
type Outcome string

const (
	OutcomeOpened   Outcome = "Opened"
	OutcomeApproved Outcome = "Approved"
	OutcomeRejected Outcome = "Rejected"
	OutcomeVoided   Outcome = "Voided"
	OutcomeReleased Outcome = "Released"
)

// machineOutcomes are produced by the Engine for every module.
var machineOutcomes = []Outcome{OutcomeOpened, OutcomeApproved, OutcomeRejected, OutcomeVoided}

// StatusWriter stores the denormalised status of one subject type.
type StatusWriter interface {
	ApplyStatus(ctx context.Context, id uuid.UUID, status string) error
}

// StatusTable maps an outcome of a module's request to the subject status string.
type StatusTable map[model.Module]map[Outcome]string

// DefaultStatusTable is the status vocabulary shown to users.
var DefaultStatusTable = StatusTable{
	model.ModuleRegularRegistration: {
		OutcomeOpened:   model.StatusForRegularApproval,
		OutcomeApproved: model.StatusApproved,
		OutcomeRejected: model.StatusRejected,
		OutcomeVoided:   model.StatusVoided,
	},
	model.ModuleDirectRegistration: {
		OutcomeOpened:   model.StatusDirectRegistrationApproval,
		OutcomeApproved: model.StatusApproved,
		OutcomeRejected: model.StatusRejected,
		OutcomeVoided:   model.StatusVoided,
	},
	model.ModuleFreebie: {
		OutcomeOpened:   model.StatusForFreebieApproval,
		OutcomeApproved: model.StatusApproved,
		OutcomeRejected: model.StatusRejected,
		OutcomeVoided:   model.StatusVoided,
		OutcomeReleased: model.StatusReleased,
	},
	model.ModuleListingFee: {
		OutcomeOpened:   model.StatusForListingFeeApproval,
		OutcomeApproved: model.StatusApproved,
		OutcomeRejected: model.StatusRejected,
		OutcomeVoided:   model.StatusVoided,
	},
}

// Projector writes request outcomes onto subject entities.
type Projector struct {
	table   StatusTable
	writers map[model.SubjectType]StatusWriter
}

// NewProjector checks that the table is total over every module and machine
// outcome and that each subject type has a writer.
func NewProjector(table StatusTable, writers map[model.SubjectType]StatusWriter) (*Projector, error) {
	for _, module := range model.Modules {
		outcomes, ok := table[module]
		if !ok {
			return nil, Newf(ErrUnmappedProjection, "no status mapping for module %q", module)
		}
		for _, outcome := range machineOutcomes {
			if outcomes[outcome] == "" {
				return nil, Newf(ErrUnmappedProjection, "no status mapping for %q/%s", module, outcome)
			}
		}
		if writers[model.SubjectTypeOf(module)] == nil {
			return nil, Newf(ErrUnmappedProjection, "no status writer for subject %s", model.SubjectTypeOf(module))
		}
	}
	return &Projector{table: table, writers: writers}, nil
}

// StatusFor looks up the subject status for a module's outcome.
func (p *Projector) StatusFor(module model.Module, outcome Outcome) (string, error) {
	status := p.table[module][outcome]
	if status == "" {
		return "", Newf(ErrUnmappedProjection, "no status mapping for %q/%s", module, outcome)
	}
	return status, nil
}

// Project writes the mapped status onto the subject and returns it.
func (p *Projector) Project(ctx context.Context, module model.Module, subjectID uuid.UUID, outcome Outcome) (string, error) {
	status, err := p.StatusFor(module, outcome)
	if err != nil {
		return "", err
	}
	subjectType := model.SubjectTypeOf(module)
	writer, ok := p.writers[subjectType]
	if !ok {
		return "", Newf(ErrUnmappedProjection, "no status writer for subject %s", subjectType)
	}
	if err := writer.ApplyStatus(ctx, subjectID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", Newf(ErrSubjectNotFound, "%s %s not found", subjectType, subjectID)
		}
		return "", fmt.Errorf("failed to project %s onto %s %s: %w", outcome, subjectType, subjectID, err)
	}
	return status, nil
}
