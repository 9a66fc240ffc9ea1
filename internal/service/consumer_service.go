// FILE: internal/service/consumer_service.go
// PURPOSE: Relays in-process provenance events to the audit log and NATS

package service

import (
	"context"
	"encoding/json"

	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/pkg/acb/provenance"
	"agent-memory-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

// EventPublisher forwards domain events to the shared bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	publisher  EventPublisher
	auditLog   logger.ILogger
	logger     logger.ILogger
}

// NewConsumerService reads provenance events from topicName. publisher may be
// nil when NATS is not reachable; events are then only written to auditLog.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	publisher EventPublisher,
	auditLog logger.ILogger,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		publisher:  publisher,
		auditLog:   auditLog,
		logger:     log,
	}
}

// Consume subscribes and processes messages in the background until ctx ends.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var evt provenance.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		cs.logger.Error("PROVENANCE", "Failed to unmarshal provenance event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		// Redelivery cannot fix a malformed payload.
		msg.Ack()
		return
	}

	cs.auditLog.Info("PROVENANCE", "Bundle built", map[string]interface{}{
		"acb_id":             evt.BundleID,
		"tenant_id":          evt.TenantID,
		"session_id":         evt.SessionID,
		"agent_id":           evt.AgentID,
		"mode":               evt.Mode,
		"classified_mode":    evt.Provenance.ClassifiedMode,
		"smoothed":           evt.Provenance.Smoothed,
		"budget_tokens":      evt.TotalBudget,
		"token_used_est":     evt.TokensUsed,
		"degraded":           evt.Degraded,
		"reallocation_count": evt.ReallocationCount,
		"omission_count":     evt.OmissionCount,
		"duration_ms":        evt.DurationMs,
	})

	if cs.publisher != nil {
		busEvent, err := events.FromStruct(provenance.EventTypeBuilt, evt, evt.BuiltAt)
		if err == nil {
			err = cs.publisher.Publish(ctx, busEvent)
		}
		if err != nil {
			// The audit log already holds the record; forwarding is best effort.
			cs.logger.Warn("PROVENANCE", "Failed to forward provenance event", map[string]interface{}{
				"acb_id": evt.BundleID,
				"error":  err.Error(),
			})
		}
	}

	msg.Ack()
}
