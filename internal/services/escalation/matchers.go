package escalation

import (
	"context"
	"time"

	"github.com/propdesk/propdesk/internal/models"
)

// Condition matchers are pure: they read only the rule, the snapshot and
// the evaluation time, perform no I/O, and are deterministic. This keeps
// the per-entity cost of a sweep bounded and the semantics testable.

// MatchSLABreach reports a breach when the deadline has passed and the
// entity is still in a non-terminal status.
func MatchSLABreach(snap models.EntitySnapshot, now time.Time) bool {
	if snap.DueOrSLAAt == nil || snap.Terminal() {
		return false
	}
	return now.After(*snap.DueOrSLAAt)
}

// MatchStatusStale reports staleness when the status has not changed for
// at least the threshold and the status is non-terminal.
func MatchStatusStale(threshold time.Duration, snap models.EntitySnapshot, now time.Time) bool {
	if snap.Terminal() {
		return false
	}
	return now.Sub(snap.LastStatusChangeAt) >= threshold
}

// MatchHighPriorityUnassigned fires for high or urgent entities without an
// assignee, regardless of any threshold.
func MatchHighPriorityUnassigned(snap models.EntitySnapshot) bool {
	if snap.Priority != "high" && snap.Priority != "urgent" {
		return false
	}
	return !snap.Assigned()
}

// MatchOverdue fires once the due date has passed, independent of status
// terminality. Used for entities without a hard SLA concept, e.g.
// compliance due dates.
func MatchOverdue(snap models.EntitySnapshot, now time.Time) bool {
	return snap.DueOrSLAAt != nil && now.After(*snap.DueOrSLAAt)
}

// Match evaluates the rule's trigger against one snapshot. Custom rules
// are not handled here; their predicate is resolved by a collaborator and
// evaluated by the sweep.
func Match(rule *models.EscalationRule, snap models.EntitySnapshot, now time.Time) bool {
	switch rule.TriggerCondition {
	case models.TriggerSLABreach:
		return MatchSLABreach(snap, now)
	case models.TriggerStatusStale:
		threshold, ok := rule.Threshold()
		if !ok {
			return false
		}
		return MatchStatusStale(threshold, snap, now)
	case models.TriggerHighPriorityUnassigned:
		return MatchHighPriorityUnassigned(snap)
	case models.TriggerOverdue:
		return MatchOverdue(snap, now)
	default:
		return false
	}
}

// PredicateResolver evaluates the opaque predicate a custom rule carries.
// The engine treats the result as an opaque boolean; implementations must
// return within the caller's deadline or error.
type PredicateResolver interface {
	Evaluate(ctx context.Context, name string, snap models.EntitySnapshot) (bool, error)
}
