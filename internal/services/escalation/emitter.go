package escalation

import (
	"context"
	"fmt"

	"github.com/propdesk/propdesk/internal/models"
)

// EmitRequest carries everything needed to create one escalation event.
// Rule is nil for manual escalations.
type EmitRequest struct {
	Rule        *models.EscalationRule
	EntityType  models.EntityType
	EntityID    string
	EntityTitle string
	EscalatedTo string
	Reason      string
}

// Emit durably creates an escalation event and triggers its notification.
// For rule-originated requests the dedup constraint applies: when an open
// event already exists for the (rule, entity) pair, Emit reports created
// false and does nothing else. Manual requests always create.
func (s *Service) Emit(ctx context.Context, req EmitRequest) (*models.EscalationEvent, bool, error) {
	event := &models.EscalationEvent{
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		EntityTitle: req.EntityTitle,
		EscalatedTo: req.EscalatedTo,
		Reason:      req.Reason,
		CreatedAt:   s.opts.Now().UTC(),
	}
	if req.Rule != nil {
		event.RuleID = &req.Rule.ID
	}

	created, err := s.events.Insert(ctx, event)
	if err != nil {
		return nil, false, fmt.Errorf("insert escalation event: %w", err)
	}
	if !created {
		s.metrics.suppressed.Inc()
		return nil, false, nil
	}

	s.metrics.eventsEmitted.Inc()
	s.dispatch(*event)
	return event, true, nil
}

// EmitManual is the operator entry point behind POST /escalations/events.
// It bypasses rule matching and deduplication: the operator explicitly
// chose to escalate.
func (s *Service) EmitManual(ctx context.Context, entityType models.EntityType, entityID, entityTitle, escalatedTo, reason string) (*models.EscalationEvent, error) {
	if !models.ValidEntityType(string(entityType)) {
		return nil, &models.ValidationError{Field: "entity_type", Message: fmt.Sprintf("unknown entity type %q", entityType)}
	}
	if entityID == "" {
		return nil, &models.ValidationError{Field: "entity_id", Message: "entity_id is required"}
	}
	if escalatedTo == "" {
		return nil, &models.ValidationError{Field: "escalated_to", Message: "escalated_to is required"}
	}
	if reason == "" {
		return nil, &models.ValidationError{Field: "reason", Message: "reason is required"}
	}

	event, _, err := s.Emit(ctx, EmitRequest{
		EntityType:  entityType,
		EntityID:    entityID,
		EntityTitle: entityTitle,
		EscalatedTo: escalatedTo,
		Reason:      reason,
	})
	return event, err
}
