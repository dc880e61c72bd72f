package escalation

import (
	"fmt"
	"time"

	"github.com/xeonx/timeago"

	"github.com/propdesk/propdesk/internal/models"
)

// ruleReason builds the machine-generated reason text for a rule match.
// Manual escalations carry an operator-supplied reason instead.
func ruleReason(rule *models.EscalationRule, snap models.EntitySnapshot, now time.Time) string {
	switch rule.TriggerCondition {
	case models.TriggerSLABreach:
		return fmt.Sprintf("SLA deadline passed %s (rule %q)", relative(*snap.DueOrSLAAt, now), rule.Name)
	case models.TriggerStatusStale:
		hours := 0
		if rule.TimeThresholdHours != nil {
			hours = *rule.TimeThresholdHours
		}
		return fmt.Sprintf("status %q unchanged since %s, over the %dh threshold (rule %q)",
			snap.Status, relative(snap.LastStatusChangeAt, now), hours, rule.Name)
	case models.TriggerHighPriorityUnassigned:
		return fmt.Sprintf("%s priority and unassigned (rule %q)", snap.Priority, rule.Name)
	case models.TriggerOverdue:
		return fmt.Sprintf("due %s and not completed (rule %q)", relative(*snap.DueOrSLAAt, now), rule.Name)
	case models.TriggerCustom:
		return fmt.Sprintf("matched predicate %q (rule %q)", rule.CustomPredicate, rule.Name)
	default:
		return fmt.Sprintf("matched rule %q", rule.Name)
	}
}

// relative renders "3 days ago" style phrasing anchored to the sweep's
// evaluation time, so reasons stay deterministic under a fake clock.
func relative(t, now time.Time) string {
	return timeago.English.FormatReference(t, now)
}
