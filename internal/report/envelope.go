package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"kennel/internal/events"
)

// Envelope is the standardised wrapper for all reported messages.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope creates an envelope with a generated ID and current timestamp.
func NewEnvelope(envType, source string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      envType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Marshal serialises the envelope to JSON bytes.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope deserialises an envelope from JSON bytes.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// Subject hierarchy: kennel.service.<name>.status for lifecycle
// transitions, kennel.service.<name>.health for probe flips.
const (
	subjectPrefix = "kennel.service."
	statusSuffix  = ".status"
	healthSuffix  = ".health"
)

// SubjectFor maps a lifecycle event to its reporting subject.
func SubjectFor(ev events.Event) string {
	switch ev.Type {
	case events.ServiceHealthy, events.ServiceUnhealthy:
		return subjectPrefix + ev.Service + healthSuffix
	default:
		return subjectPrefix + ev.Service + statusSuffix
	}
}
