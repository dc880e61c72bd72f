package models

import (
	"fmt"
	"time"
)

// EntityType identifies which operational domain an escalation rule watches.
type EntityType string

const (
	EntityMaintenance   EntityType = "maintenance"
	EntitySupportTicket EntityType = "support_ticket"
	EntityLegalCase     EntityType = "legal_case"
	EntityCompliance    EntityType = "compliance"
	EntityInspection    EntityType = "inspection"
	EntityConstruction  EntityType = "construction"
)

// EntityTypes lists every known entity type in display order.
var EntityTypes = []EntityType{
	EntityMaintenance,
	EntitySupportTicket,
	EntityLegalCase,
	EntityCompliance,
	EntityInspection,
	EntityConstruction,
}

// TriggerCondition identifies the matcher an escalation rule runs.
type TriggerCondition string

const (
	TriggerSLABreach              TriggerCondition = "sla_breach"
	TriggerStatusStale            TriggerCondition = "status_stale"
	TriggerHighPriorityUnassigned TriggerCondition = "high_priority_unassigned"
	TriggerOverdue                TriggerCondition = "overdue"
	TriggerCustom                 TriggerCondition = "custom"
)

// TriggerConditions lists every known trigger condition.
var TriggerConditions = []TriggerCondition{
	TriggerSLABreach,
	TriggerStatusStale,
	TriggerHighPriorityUnassigned,
	TriggerOverdue,
	TriggerCustom,
}

// EscalationRole is the role an event is escalated to. Resolution to a
// concrete user is owned by the role/user directory collaborator.
type EscalationRole string

const (
	RoleAdmin          EscalationRole = "admin"
	RoleManager        EscalationRole = "manager"
	RoleSeniorManager  EscalationRole = "senior_manager"
	RoleDirector       EscalationRole = "director"
	RoleLegalHead      EscalationRole = "legal_head"
	RoleOperationsHead EscalationRole = "operations_head"
)

// EscalationRoles lists every known escalation role.
var EscalationRoles = []EscalationRole{
	RoleAdmin,
	RoleManager,
	RoleSeniorManager,
	RoleDirector,
	RoleLegalHead,
	RoleOperationsHead,
}

// terminalStatuses are statuses after which time-based conditions no longer apply.
var terminalStatuses = map[string]bool{
	"completed": true,
	"resolved":  true,
	"closed":    true,
	"cancelled": true,
}

// IsTerminalStatus reports whether a status ends the escalation lifecycle
// of an entity.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// ValidEntityType reports whether the value is a member of the closed
// entity-type enum shared with the admin UI.
func ValidEntityType(v string) bool {
	for _, t := range EntityTypes {
		if string(t) == v {
			return true
		}
	}
	return false
}

// ValidTriggerCondition reports whether the value is a known trigger kind.
func ValidTriggerCondition(v string) bool {
	for _, t := range TriggerConditions {
		if string(t) == v {
			return true
		}
	}
	return false
}

// ValidEscalationRole reports whether the value is a known role identifier.
func ValidEscalationRole(v string) bool {
	for _, r := range EscalationRoles {
		if string(r) == v {
			return true
		}
	}
	return false
}

// EscalationRule configures one automatic escalation check. Rules are
// evaluated by the sweep against entity snapshots of their entity type.
type EscalationRule struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	EntityType         EntityType       `json:"entity_type"`
	TriggerCondition   TriggerCondition `json:"trigger_condition"`
	EscalateToRole     EscalationRole   `json:"escalate_to_role"`
	TimeThresholdHours *int             `json:"time_threshold_hours,omitempty"`
	CustomPredicate    string           `json:"custom_predicate,omitempty"`
	IsActive           bool             `json:"is_active"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Threshold returns the configured threshold as a duration, or false when
// the rule carries none.
func (r *EscalationRule) Threshold() (time.Duration, bool) {
	if r.TimeThresholdHours == nil {
		return 0, false
	}
	return time.Duration(*r.TimeThresholdHours) * time.Hour, true
}

// Validate checks the rule against the enum and threshold invariants.
func (r *EscalationRule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !ValidEntityType(string(r.EntityType)) {
		return &ValidationError{Field: "entity_type", Message: fmt.Sprintf("unknown entity type %q", r.EntityType)}
	}
	if !ValidTriggerCondition(string(r.TriggerCondition)) {
		return &ValidationError{Field: "trigger_condition", Message: fmt.Sprintf("unknown trigger condition %q", r.TriggerCondition)}
	}
	if !ValidEscalationRole(string(r.EscalateToRole)) {
		return &ValidationError{Field: "escalate_to_role", Message: fmt.Sprintf("unknown role %q", r.EscalateToRole)}
	}
	if r.TimeThresholdHours != nil && *r.TimeThresholdHours < 0 {
		return &ValidationError{Field: "time_threshold_hours", Message: "threshold must be a non-negative integer"}
	}
	switch r.TriggerCondition {
	case TriggerStatusStale:
		if r.TimeThresholdHours == nil {
			return &ValidationError{Field: "time_threshold_hours", Message: "status_stale rules require a threshold"}
		}
	case TriggerCustom:
		if r.CustomPredicate == "" {
			return &ValidationError{Field: "custom_predicate", Message: "custom rules require a predicate reference"}
		}
	}
	return nil
}

// EntitySnapshot is a read-only, point-in-time view of an entity in another
// domain, normalized to the fields the matchers need. Snapshots are produced
// by the snapshot provider and never mutated by the engine.
type EntitySnapshot struct {
	EntityType         EntityType `json:"entity_type" db:"entity_type"`
	EntityID           string     `json:"entity_id" db:"entity_id"`
	Title              string     `json:"title" db:"title"`
	Status             string     `json:"status" db:"status"`
	Priority           string     `json:"priority" db:"priority"`
	AssigneeID         *string    `json:"assignee_id,omitempty" db:"assignee_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	LastStatusChangeAt time.Time  `json:"last_status_change_at" db:"last_status_change_at"`
	DueOrSLAAt         *time.Time `json:"due_or_sla_at,omitempty" db:"due_or_sla_at"`
}

// Assigned reports whether the entity has a non-empty assignee.
func (s *EntitySnapshot) Assigned() bool {
	return s.AssigneeID != nil && *s.AssigneeID != ""
}

// Terminal reports whether the snapshot's status is terminal.
func (s *EntitySnapshot) Terminal() bool {
	return IsTerminalStatus(s.Status)
}

// Delivery status values for an event's notification.
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// EscalationEvent is the durable record of one escalation. Events are
// created by the sweep or by the manual escalation endpoint and mutated
// exactly once, by acknowledgment. They are never deleted.
type EscalationEvent struct {
	ID             string     `json:"id"`
	RuleID         *string    `json:"rule_id,omitempty"`
	EntityType     EntityType `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	EntityTitle    string     `json:"entity_title"`
	EscalatedTo    string     `json:"escalated_to"`
	Reason         string     `json:"reason"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	DeliveryStatus string     `json:"delivery_status"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Manual reports whether the event was created by an operator rather than
// a rule match.
func (e *EscalationEvent) Manual() bool {
	return e.RuleID == nil
}
