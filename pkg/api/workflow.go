package api

import (
	"fmt"
	"strings"
	"time"
)

// RuntimeState represents the lifecycle state of a workflow instance.
type RuntimeState string

const (
	StatePending   RuntimeState = "Pending"
	StateRunning   RuntimeState = "Running"
	StateCompleted RuntimeState = "Completed"
	StateFailed    RuntimeState = "Failed"
)

// Terminal reports whether no further history can be appended for s.
func (s RuntimeState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ParseRuntimeState accepts the canonical names case-insensitively.
func ParseRuntimeState(s string) (RuntimeState, error) {
	for _, st := range []RuntimeState{StatePending, StateRunning, StateCompleted, StateFailed} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown runtime state %q", ErrInvalidInput, s)
}

// Phase names the wait point an instance is currently parked at.
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseFeedback Phase = "feedback"
	PhaseApproval Phase = "approval"
)

// Custom status strings set by the onboarding workflow.
const (
	StatusWaitingForFeedback       = "Waiting for feedback"
	StatusInterviewCollected       = "Interview feedback collected"
	StatusBackgroundCheckCollected = "Background check feedback collected"
	StatusContractCollected        = "Contract feedback collected"
	StatusAwaitingSubmission       = "Awaiting submission"
	StatusSubmitted                = "Submitted document"
)

// DocumentProperties is the immutable input of a workflow instance.
type DocumentProperties struct {
	Title         string    `json:"title"`
	CreatedDate   time.Time `json:"createdDate"`
	Creator       string    `json:"creator"`
	ApplicationID string    `json:"applicationId"`
}

// Validate checks that every field is present.
func (p DocumentProperties) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if p.CreatedDate.IsZero() {
		missing = append(missing, "createdDate")
	}
	if strings.TrimSpace(p.Creator) == "" {
		missing = append(missing, "creator")
	}
	if strings.TrimSpace(p.ApplicationID) == "" {
		missing = append(missing, "applicationId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Feedback is the payload of the three reviewer signals.
type Feedback struct {
	Feedback string `json:"feedback"`
	Passed   bool   `json:"isPassed"`
}

// WorkDocument aggregates the input and all three feedbacks. It is the sole
// input of the submission activity.
type WorkDocument struct {
	Properties      DocumentProperties `json:"properties"`
	Interview       Feedback           `json:"interviewFeedback"`
	BackgroundCheck Feedback           `json:"backgroundCheckFeedback"`
	Contract        Feedback           `json:"contractFeedback"`
}

// Instance is the read model of a workflow instance, projected from its
// history log.
type Instance struct {
	ID     string
	Input  DocumentProperties
	State  RuntimeState
	Status string

	// Output is set once State is StateCompleted.
	Output string

	// Failure holds the recorded reason once State is StateFailed.
	Failure string

	// Phase and WaitingFor describe the current suspension point.
	Phase      Phase
	WaitingFor []SignalName

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSequence int64
}

// Summary returns the directory projection of the instance.
func (i *Instance) Summary() InstanceSummary {
	return InstanceSummary{
		ID:            i.ID,
		State:         i.State,
		Status:        i.Status,
		Title:         i.Input.Title,
		ApplicationID: i.Input.ApplicationID,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

// InstanceSummary is the row returned by ListInstances.
type InstanceSummary struct {
	ID            string       `json:"instanceId"`
	State         RuntimeState `json:"runtimeStatus"`
	Status        string       `json:"customStatus"`
	Title         string       `json:"title"`
	ApplicationID string       `json:"applicationId"`
	CreatedAt     time.Time    `json:"createdTime"`
	UpdatedAt     time.Time    `json:"lastUpdatedTime"`
}

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
	DefaultLookback = 7 * 24 * time.Hour
)

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// States, if non-empty, limits results to instances in one of the states.
	States []RuntimeState

	// CreatedAfter, if non-zero, is an exclusive lower bound on CreatedAt.
	CreatedAfter time.Time

	// PageSize defaults to DefaultPageSize and is capped at MaxPageSize.
	PageSize int

	// PageToken is the NextPageToken of a previous page.
	PageToken string
}

// InstancePage is one page of ListInstances results.
type InstancePage struct {
	Instances     []InstanceSummary
	NextPageToken string
}
