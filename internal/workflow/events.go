package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the live feed after a transition commits.
const (
	EventLevelApproved   = "level_approved"
	EventRequestApproved = "request_approved"
	EventRequestRejected = "request_rejected"
	EventRequestVoided   = "request_voided"
	EventFreebieReleased = "freebie_released"
)

// Event describes a committed transition.
type Event struct {
	Type              string     `json:"type"`
	RequestID         uuid.UUID  `json:"request_id"`
	Module            string     `json:"module"`
	SubjectID         uuid.UUID  `json:"subject_id"`
	Status            string     `json:"status"`
	SubjectStatus     string     `json:"subject_status"`
	CurrentLevel      int        `json:"current_level"`
	CurrentApproverID *uuid.UUID `json:"current_approver_id,omitempty"`
	ActorID           uuid.UUID  `json:"actor_id"`
	At                time.Time  `json:"at"`
}

// Publisher receives committed transitions. Implementations must not block.
type Publisher interface {
	Publish(event Event)
}
