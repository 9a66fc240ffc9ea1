// FILE: internal/service/audit_service.go
// PURPOSE: Persists ACB_BUILT events from NATS into the bundle audit table

package service

import (
	"context"

	"agent-memory-be/internal/entity"
	"agent-memory-be/internal/pkg/logger"
	"agent-memory-be/internal/repository/unitofwork"
	"agent-memory-be/pkg/acb/provenance"
	"agent-memory-be/pkg/events"
	pktNats "agent-memory-be/pkg/nats"

	"github.com/google/uuid"
)

const auditDurableName = "acb-audit-worker"

// EventSubscriber registers durable handlers on the shared bus.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject string, durableName string, handler pktNats.EventHandler) error
}

type IAuditService interface {
	Start(ctx context.Context) error
	Handle(ctx context.Context, event events.Event) error
}

type auditService struct {
	subscriber EventSubscriber
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewAuditService(subscriber EventSubscriber, uowFactory unitofwork.RepositoryFactory, log logger.ILogger) IAuditService {
	return &auditService{
		subscriber: subscriber,
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (s *auditService) Start(ctx context.Context) error {
	subject := pktNats.Subject(provenance.EventTypeBuilt)
	if err := s.subscriber.Subscribe(ctx, subject, auditDurableName, s.Handle); err != nil {
		s.logger.Error("AuditService", "Failed to start audit subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("AuditService", "Audit service started, listening to "+subject, nil)
	return nil
}

// Handle stores one event. Undecodable events are dropped; storage errors
// are returned so the bus redelivers.
func (s *auditService) Handle(ctx context.Context, event events.Event) error {
	var evt provenance.Event
	if err := events.Decode(event, &evt); err != nil {
		s.logger.Warn("AuditService", "Dropping undecodable event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
		return nil
	}

	id, err := uuid.Parse(evt.BundleID)
	if err != nil {
		s.logger.Warn("AuditService", "Dropping event with invalid acb_id", map[string]interface{}{
			"acb_id": evt.BundleID,
		})
		return nil
	}

	audit := &entity.BundleAudit{
		Id:                id,
		TenantId:          evt.TenantID,
		SessionId:         evt.SessionID,
		AgentId:           evt.AgentID,
		Channel:           evt.Channel,
		Mode:              string(evt.Mode),
		TotalBudget:       evt.TotalBudget,
		TokensUsed:        evt.TokensUsed,
		Degraded:          evt.Degraded,
		ReallocationCount: evt.ReallocationCount,
		CapsuleCount:      evt.CapsuleCount,
		OmissionCount:     evt.OmissionCount,
		DurationMs:        evt.DurationMs,
		Provenance:        evt.Provenance,
		BuiltAt:           evt.BuiltAt,
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.BundleAuditRepository().Create(ctx, audit); err != nil {
		s.logger.Error("AuditService", "Failed to store bundle audit", map[string]interface{}{
			"acb_id": evt.BundleID,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}
