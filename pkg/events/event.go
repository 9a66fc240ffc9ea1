package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "ACB_BUILT").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// FromStruct builds an event whose payload is v's JSON object form.
func FromStruct(eventType string, v any, occurredAt time.Time) (BaseEvent, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return BaseEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return BaseEvent{}, fmt.Errorf("%s payload is not a JSON object: %w", eventType, err)
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: occurredAt}, nil
}

// Decode unmarshals an event payload into out.
func Decode(e Event, out any) error {
	raw, err := json.Marshal(e.Payload())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
