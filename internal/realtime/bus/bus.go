package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventChunkAppended       = "chunk.appended"
	EventEvaluationCompleted = "evaluation.completed"
	EventSpeakerCorrected    = "speaker.corrected"
)

// Event is the envelope published for integrations. Dashboards still poll; the bus is a hook.
type Event struct {
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func NewEvent(typ string, sessionID uuid.UUID, data any) (Event, error) {
	ev := Event{Type: typ, SessionID: sessionID, At: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type nopBus struct{}

// Nop returns a bus that drops every event. Used when REDIS_ADDR is unset.
func Nop() Bus { return nopBus{} }

func (nopBus) Publish(ctx context.Context, ev Event) error { return nil }
func (nopBus) Close() error                                { return nil }
