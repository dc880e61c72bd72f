// Package escalation implements the evaluation engine that watches entity
// snapshots across the console's domains and raises escalation events when
// active rules match.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/snapshot"
)

// ErrSweepInProgress is returned when a sweep is requested while another
// one is still running. Sweeps are not cumulative; the caller simply waits
// for the next cycle.
var ErrSweepInProgress = errors.New("escalation sweep already in progress")

// Sweep states, visible through Status for operators.
const (
	StateIdle            = "idle"
	StateLoadingRules    = "loading_rules"
	StateDispatching     = "dispatching"
	StateAwaitingWorkers = "awaiting_workers"
)

type ruleStore interface {
	ListActive(ctx context.Context, entityType models.EntityType) ([]*models.EscalationRule, error)
}

type eventStore interface {
	Insert(ctx context.Context, event *models.EscalationEvent) (bool, error)
	SetDeliveryStatus(ctx context.Context, id, status string) error
	CountOpen(ctx context.Context) (int, error)
}

// Service is the escalation engine: a periodic evaluator plus the emit
// path shared with manual escalations.
type Service struct {
	rules    ruleStore
	events   eventStore
	provider snapshot.Provider
	opts     options
	metrics  *sweepMetrics

	cron    *cron.Cron
	entryID cron.EntryID

	running    atomic.Bool
	state      atomic.Value
	dispatchWG sync.WaitGroup
}

// New creates the engine over its stores and collaborators.
func New(rules ruleStore, events eventStore, provider snapshot.Provider, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		rules:    rules,
		events:   events,
		provider: provider,
		opts:     o,
		metrics:  globalSweepMetrics(),
		cron:     o.Cron,
	}
	if s.cron == nil {
		s.cron = cron.New()
	}
	s.state.Store(StateIdle)
	return s
}

// Status returns the engine's current sweep state.
func (s *Service) Status() string {
	return s.state.Load().(string)
}

// Interval returns the configured sweep interval.
func (s *Service) Interval() time.Duration {
	return s.opts.Interval
}

// Start schedules periodic sweeps and starts the cron runner.
func (s *Service) Start() error {
	spec := fmt.Sprintf("@every %s", s.opts.Interval)
	id, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunSweep(context.Background()); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.opts.Logger.Printf("escalation: sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.opts.Logger.Printf("escalation: engine started, sweeping every %s with %d workers", s.opts.Interval, s.opts.Workers)
	return nil
}

// Stop halts scheduling and waits for the in-flight sweep and pending
// notification dispatches to drain, within the caller's deadline.
func (s *Service) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	dispatched := make(chan struct{})
	go func() {
		s.dispatchWG.Wait()
		close(dispatched)
	}()
	select {
	case <-dispatched:
		return nil
	case <-ctx.Done():
		s.opts.Logger.Printf("escalation: shutdown grace period elapsed with dispatches pending")
		return ctx.Err()
	}
}

// dispatch delivers a freshly created event without blocking the emitter.
// A delivery failure is logged and recorded on the event; the event itself
// stays, being the durable record of the escalation.
func (s *Service) dispatch(event models.EscalationEvent) {
	if s.opts.Dispatcher == nil {
		return
	}
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
		defer cancel()

		status := models.DeliverySent
		if err := s.opts.Dispatcher.Dispatch(ctx, event); err != nil {
			status = models.DeliveryFailed
			s.metrics.dispatchFailures.Inc()
			s.opts.Logger.Printf("escalation: dispatch of event %s to %s failed: %v", event.ID, event.EscalatedTo, err)
		}
		if err := s.events.SetDeliveryStatus(ctx, event.ID, status); err != nil {
			s.opts.Logger.Printf("escalation: recording delivery status for event %s failed: %v", event.ID, err)
		}
	}()
}
