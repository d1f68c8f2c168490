package events

import (
	"time"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// EventType identifies a progress event in the closed wire enumeration
// consumed by the real-time boundary.
type EventType string

const (
	EventStatusUpdate          EventType = "status_update"
	EventPhaseStart            EventType = "phase_start"
	EventPhaseComplete         EventType = "phase_complete"
	EventHypothesisGenerated   EventType = "hypothesis_generated"
	EventEvidenceFound         EventType = "evidence_found"
	EventContradictionDetected EventType = "contradiction_detected"
	EventRoundComplete         EventType = "round_complete"
	EventJobComplete           EventType = "job_complete"
	EventCompleted             EventType = "completed"
	EventError                 EventType = "error"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is an append-only, at-least-once progress notification. Events for a
// single job are published in the order their originating phase transitions
// occur; no ordering is guaranteed across jobs. Error events are advisory:
// the terminal job state is the authoritative failure record.
type Event struct {
	Type         EventType      `json:"type"`
	JobID        types.ID       `json:"jobId"`
	EngagementID string         `json:"engagementId,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with the current time.
func New(t EventType, jobID types.ID, engagementID string, data map[string]any) Event {
	return Event{
		Type:         t,
		JobID:        jobID,
		EngagementID: engagementID,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
}

// Filter restricts a subscription to matching events. All fields use AND
// logic; empty fields act as wildcards.
type Filter struct {
	Types        []EventType `json:"types,omitempty"`
	JobID        types.ID    `json:"job_id,omitempty"`
	EngagementID string      `json:"engagement_id,omitempty"`
}

// Matches reports whether the event satisfies every non-empty criterion.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if !f.JobID.IsZero() && event.JobID != f.JobID {
		return false
	}

	if f.EngagementID != "" && event.EngagementID != f.EngagementID {
		return false
	}

	return true
}
