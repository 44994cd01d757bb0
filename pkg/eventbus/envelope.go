package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StateChange is the payload carried by workflow and step lifecycle events.
type StateChange struct {
	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id,omitempty"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	Error      string `json:"error,omitempty"`
}

// Envelope wraps a lifecycle event with identity and timing metadata.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Timestamp  time.Time       `json:"timestamp"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	StepID     string          `json:"step_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// BuildEnvelope creates an envelope with generated event identity.
func BuildEnvelope(eventType, workflowID, stepID string, payload any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("eventbus: event type is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		StepID:     stepID,
		Payload:    raw,
	}, nil
}
