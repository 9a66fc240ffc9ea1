package provenance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agent-memory-be/pkg/acb"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// EventTypeBuilt is the event code of a finished build.
const EventTypeBuilt = "ACB_BUILT"

// Event is handed to a Sink after every successful build.
type Event struct {
	BundleID          string         `json:"acb_id"`
	TenantID          string         `json:"tenant_id"`
	SessionID         string         `json:"session_id"`
	AgentID           string         `json:"agent_id,omitempty"`
	Channel           string         `json:"channel,omitempty"`
	Mode              acb.Mode       `json:"mode"`
	TotalBudget       int            `json:"budget_tokens"`
	TokensUsed        int            `json:"token_used_est"`
	Degraded          bool           `json:"degraded"`
	ReallocationCount int            `json:"reallocation_count"`
	CapsuleCount      int            `json:"capsule_count"`
	OmissionCount     int            `json:"omission_count"`
	DurationMs        int64          `json:"duration_ms"`
	Provenance        acb.Provenance `json:"provenance"`
	BuiltAt           time.Time      `json:"built_at"`
}

// NewEvent summarises a result.
func NewEvent(req acb.Request, res *acb.Result, builtAt time.Time) Event {
	omitted := 0
	for _, o := range res.Omissions {
		omitted += o.Count
	}
	return Event{
		BundleID:          res.ID,
		TenantID:          req.TenantID,
		SessionID:         req.SessionID,
		AgentID:           req.AgentID,
		Channel:           req.Channel,
		Mode:              res.Provenance.Mode,
		TotalBudget:       res.TotalBudget,
		TokensUsed:        res.TokensUsed,
		Degraded:          res.Degraded,
		ReallocationCount: res.ReallocationCount,
		CapsuleCount:      res.CapsuleCount,
		OmissionCount:     omitted,
		DurationMs:        res.Duration.Milliseconds(),
		Provenance:        res.Provenance,
		BuiltAt:           builtAt,
	}
}

// Sink receives provenance events. Failures never fail a build.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// WatermillSink publishes events as JSON messages on a watermill topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (s *WatermillSink) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", EventTypeBuilt)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to publish provenance event: %w", err)
	}
	return nil
}
