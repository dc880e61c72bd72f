// Package notifications delivers escalation events to their targets.
package notifications

import (
	"context"
	"log"
	"sync"

	"github.com/propdesk/propdesk/internal/models"
)

// Dispatcher delivers an emitted escalation event to its target. Delivery
// runs after the event is durably stored; a dispatch failure is logged and
// recorded but never rolls the event back.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.EscalationEvent) error
}

// RecipientResolver maps an escalation role to a concrete user for a given
// entity. The role/user directory collaborator owns this mapping.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, role models.EscalationRole, entityType models.EntityType, entityID string) (string, error)
}

// LogDispatcher writes deliveries to the logger. The default when no
// channel is configured, so an engine without SMTP still surfaces events.
type LogDispatcher struct {
	Logger *log.Logger
}

// Dispatch logs the event delivery.
func (d *LogDispatcher) Dispatch(_ context.Context, event models.EscalationEvent) error {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notifications: escalation %s for %s %s delivered to %s: %s",
		event.ID, event.EntityType, event.EntityID, event.EscalatedTo, event.Reason)
	return nil
}

// MemoryDispatcher records dispatched events. Used in tests.
type MemoryDispatcher struct {
	mu     sync.Mutex
	events []models.EscalationEvent
	err    error
}

// NewMemoryDispatcher creates an empty recording dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// FailWith makes every subsequent dispatch return err.
func (d *MemoryDispatcher) FailWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// Dispatch records the event.
func (d *MemoryDispatcher) Dispatch(_ context.Context, event models.EscalationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

// Dispatched returns a copy of the recorded events.
func (d *MemoryDispatcher) Dispatched() []models.EscalationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.EscalationEvent, len(d.events))
	copy(out, d.events)
	return out
}
