package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/propdesk/propdesk/internal/models"
)

// sweepStatusKey is where the latest sweep outcome is persisted for
// operators; sweep-internal failures are invisible to end users, so this
// record is the queryable trail.
const sweepStatusKey = "escalation:sweep:last"

// SweepResult summarizes one evaluation pass.
type SweepResult struct {
	StartedAt      time.Time         `json:"started_at"`
	Duration       time.Duration     `json:"duration"`
	RulesEvaluated int               `json:"rules_evaluated"`
	Matches        int               `json:"matches"`
	EventsEmitted  int               `json:"events_emitted"`
	Suppressed     int               `json:"suppressed"`
	SkippedDomains map[string]string `json:"skipped_domains,omitempty"`
	Errors         []string          `json:"errors,omitempty"`
}

type emitTask struct {
	rule *models.EscalationRule
	snap models.EntitySnapshot
	now  time.Time
}

// RunSweep executes one full evaluation pass: load active rules, fetch
// each affected entity type once, run the matchers, and emit events for
// matches through the dedup-safe path. Only one sweep runs at a time;
// sweeps are never queued, since only the latest entity state matters.
func (s *Service) RunSweep(ctx context.Context) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)
	defer s.state.Store(StateIdle)

	s.metrics.runs.Inc()
	timer := prometheus.NewTimer(s.metrics.durations)
	defer timer.ObserveDuration()
	wallStart := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.opts.SweepTimeout)
	defer cancel()

	now := s.opts.Now()
	result := &SweepResult{
		StartedAt:      now,
		SkippedDomains: make(map[string]string),
	}
	var mu sync.Mutex

	// Consistent rule set read once at sweep start; rules toggled mid-sweep
	// apply next cycle.
	s.state.Store(StateLoadingRules)
	rules, err := s.rules.ListActive(ctx, "")
	if err != nil {
		s.opts.Logger.Printf("escalation: loading active rules failed: %v", err)
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	result.RulesEvaluated = len(rules)
	s.metrics.rulesEvaluated.Add(float64(len(rules)))

	byType := make(map[models.EntityType][]*models.EscalationRule)
	for _, rule := range rules {
		byType[rule.EntityType] = append(byType[rule.EntityType], rule)
	}

	s.state.Store(StateDispatching)
	tasks := make(chan emitTask)
	var workers sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for task := range tasks {
				s.processTask(ctx, task, result, &mu)
			}
		}()
	}

	// One fetcher per entity type: each domain's snapshots are loaded once
	// per sweep, not once per rule, and a failing domain never blocks the
	// others.
	var fetchers sync.WaitGroup
	for entityType, typeRules := range byType {
		fetchers.Add(1)
		go func(entityType models.EntityType, typeRules []*models.EscalationRule) {
			defer fetchers.Done()

			fetchCtx, cancelFetch := context.WithTimeout(ctx, s.opts.FetchTimeout)
			snaps, err := s.provider.Snapshots(fetchCtx, entityType)
			cancelFetch()
			if err != nil {
				s.metrics.domainsSkipped.WithLabelValues(string(entityType)).Inc()
				mu.Lock()
				result.SkippedDomains[string(entityType)] = err.Error()
				mu.Unlock()
				s.opts.Logger.Printf("escalation: skipping %s for this sweep: %v", entityType, err)
				return
			}

			for _, rule := range typeRules {
				for _, snap := range snaps {
					select {
					case tasks <- emitTask{rule: rule, snap: snap, now: now}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(entityType, typeRules)
	}

	fetchers.Wait()
	close(tasks)
	s.state.Store(StateAwaitingWorkers)
	workers.Wait()

	result.Duration = time.Since(wallStart)

	if n, err := s.events.CountOpen(ctx); err == nil {
		s.metrics.openEvents.Set(float64(n))
	}
	s.persistStatus(result)

	if ctx.Err() != nil {
		s.opts.Logger.Printf("escalation: sweep timed out after %s (%d emitted); next sweep proceeds independently",
			result.Duration.Round(time.Millisecond), result.EventsEmitted)
	} else {
		s.opts.Logger.Printf("escalation: sweep done in %s: %d rule(s), %d match(es), %d emitted, %d suppressed, %d domain(s) skipped",
			result.Duration.Round(time.Millisecond), result.RulesEvaluated, result.Matches,
			result.EventsEmitted, result.Suppressed, len(result.SkippedDomains))
	}
	return result, nil
}

// processTask evaluates one (rule, snapshot) pair and emits on a match.
func (s *Service) processTask(ctx context.Context, task emitTask, result *SweepResult, mu *sync.Mutex) {
	matched, err := s.evaluate(ctx, task)
	if err != nil {
		mu.Lock()
		result.Errors = append(result.Errors, err.Error())
		mu.Unlock()
		s.opts.Logger.Printf("escalation: %v", err)
		return
	}
	if !matched {
		return
	}

	mu.Lock()
	result.Matches++
	mu.Unlock()

	recipient, err := s.resolveRecipient(ctx, task.rule, task.snap.EntityID)
	if err != nil {
		mu.Lock()
		result.Errors = append(result.Errors, err.Error())
		mu.Unlock()
		s.opts.Logger.Printf("escalation: %v", err)
		return
	}

	_, created, err := s.Emit(ctx, EmitRequest{
		Rule:        task.rule,
		EntityType:  task.snap.EntityType,
		EntityID:    task.snap.EntityID,
		EntityTitle: task.snap.Title,
		EscalatedTo: recipient,
		Reason:      ruleReason(task.rule, task.snap, task.now),
	})
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		s.opts.Logger.Printf("escalation: emit for rule %s entity %s failed: %v", task.rule.ID, task.snap.EntityID, err)
		return
	}
	if created {
		result.EventsEmitted++
	} else {
		result.Suppressed++
	}
}

// evaluate runs the rule's matcher. Custom predicates go through the
// resolver collaborator under a bounded deadline.
func (s *Service) evaluate(ctx context.Context, task emitTask) (bool, error) {
	if task.rule.TriggerCondition != models.TriggerCustom {
		return Match(task.rule, task.snap, task.now), nil
	}

	if s.opts.Predicates == nil {
		return false, fmt.Errorf("rule %s: no predicate resolver configured for custom rule", task.rule.ID)
	}
	evalCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	matched, err := s.opts.Predicates.Evaluate(evalCtx, task.rule.CustomPredicate, task.snap)
	if err != nil {
		return false, fmt.Errorf("rule %s: predicate %q: %w", task.rule.ID, task.rule.CustomPredicate, err)
	}
	return matched, nil
}

// resolveRecipient maps the rule's target role to a concrete user.
func (s *Service) resolveRecipient(ctx context.Context, rule *models.EscalationRule, entityID string) (string, error) {
	if s.opts.Resolver == nil {
		return "", fmt.Errorf("rule %s: no recipient resolver configured", rule.ID)
	}
	recipient, err := s.opts.Resolver.ResolveRecipient(ctx, rule.EscalateToRole, rule.EntityType, entityID)
	if err != nil {
		return "", fmt.Errorf("rule %s: resolving role %s: %w", rule.ID, rule.EscalateToRole, err)
	}
	return recipient, nil
}

// persistStatus records the sweep outcome for operators. Best effort; a
// missing cache only loses the status page, never the sweep.
func (s *Service) persistStatus(result *SweepResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.opts.Cache.SetJSON(ctx, sweepStatusKey, result, 24*time.Hour); err != nil {
		s.opts.Logger.Printf("escalation: persisting sweep status failed: %v", err)
	}
}

// LastSweep returns the most recent persisted sweep outcome, if any.
func (s *Service) LastSweep(ctx context.Context) (*SweepResult, bool, error) {
	var result SweepResult
	found, err := s.opts.Cache.GetJSON(ctx, sweepStatusKey, &result)
	if err != nil || !found {
		return nil, false, err
	}
	return &result, true, nil
}
