package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/models"
)

// ErrRuleReferenced is returned when a rule with historical events would be
// physically deleted. Referenced rules may only be soft-disabled.
var ErrRuleReferenced = errors.New("escalation rule is referenced by events and cannot be deleted")

// ErrThresholdImmutable is returned when an update tries to change the time
// threshold of a custom rule. Custom rules carry a predicate reference, not a
// time threshold.
var ErrThresholdImmutable = errors.New("threshold cannot be changed for custom rules")

// EscalationRuleRepository handles database operations for escalation rules.
type EscalationRuleRepository struct {
	db *sql.DB
}

// NewEscalationRuleRepository creates a new escalation rule repository.
func NewEscalationRuleRepository(db *sql.DB) *EscalationRuleRepository {
	return &EscalationRuleRepository{db: db}
}

// RulePatch carries a partial update. Nil fields are left unchanged;
// ClearThreshold removes the threshold explicitly.
type RulePatch struct {
	Name               *string
	Description        *string
	EntityType         *models.EntityType
	TriggerCondition   *models.TriggerCondition
	EscalateToRole     *models.EscalationRole
	TimeThresholdHours *int
	ClearThreshold     bool
	CustomPredicate    *string
	IsActive           *bool
}

const ruleColumns = `id, name, COALESCE(description, ''), entity_type, trigger_condition,
	escalate_to_role, time_threshold_hours, custom_predicate, is_active, created_at`

// Create validates and inserts a rule, assigning an ID and creation time
// when they are absent.
func (r *EscalationRuleRepository) Create(ctx context.Context, rule *models.EscalationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	query := database.ConvertPlaceholders(`
		INSERT INTO escalation_rules
			(id, name, description, entity_type, trigger_condition,
			 escalate_to_role, time_threshold_hours, custom_predicate, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.EntityType, rule.TriggerCondition,
		rule.EscalateToRole, nullableInt(rule.TimeThresholdHours), rule.CustomPredicate,
		rule.IsActive, rule.CreatedAt)
	return err
}

// GetByID returns a single rule, or sql.ErrNoRows.
func (r *EscalationRuleRepository) GetByID(ctx context.Context, id string) (*models.EscalationRule, error) {
	query := database.ConvertPlaceholders(`SELECT ` + ruleColumns + ` FROM escalation_rules WHERE id = ?`)
	return scanRule(r.db.QueryRowContext(ctx, query, id))
}

// List returns all rules, newest first.
func (r *EscalationRuleRepository) List(ctx context.Context) ([]*models.EscalationRule, error) {
	query := database.ConvertPlaceholders(`
		SELECT ` + ruleColumns + ` FROM escalation_rules ORDER BY created_at DESC, id`)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListActive returns active rules, optionally filtered to one entity type.
// The sweep calls this once at sweep start; rules toggled mid-sweep apply
// on the next cycle.
func (r *EscalationRuleRepository) ListActive(ctx context.Context, entityType models.EntityType) ([]*models.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE is_active = ?`
	args := []any{true}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, database.ConvertPlaceholders(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRules(rows)
}

// Update applies a partial update. Threshold changes on custom rules are
// rejected with ErrThresholdImmutable.
func (r *EscalationRuleRepository) Update(ctx context.Context, id string, patch RulePatch) (*models.EscalationRule, error) {
	rule, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if rule.TriggerCondition == models.TriggerCustom && (patch.TimeThresholdHours != nil || patch.ClearThreshold) {
		return nil, ErrThresholdImmutable
	}

	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.EntityType != nil {
		rule.EntityType = *patch.EntityType
	}
	if patch.TriggerCondition != nil {
		rule.TriggerCondition = *patch.TriggerCondition
	}
	if patch.EscalateToRole != nil {
		rule.EscalateToRole = *patch.EscalateToRole
	}
	if patch.ClearThreshold {
		rule.TimeThresholdHours = nil
	} else if patch.TimeThresholdHours != nil {
		rule.TimeThresholdHours = patch.TimeThresholdHours
	}
	if patch.CustomPredicate != nil {
		rule.CustomPredicate = *patch.CustomPredicate
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}

	query := database.ConvertPlaceholders(`
		UPDATE escalation_rules
		SET name = ?, description = ?, entity_type = ?, trigger_condition = ?,
			escalate_to_role = ?, time_threshold_hours = ?, custom_predicate = ?, is_active = ?
		WHERE id = ?
	`)
	_, err = r.db.ExecContext(ctx, query,
		rule.Name, rule.Description, rule.EntityType, rule.TriggerCondition,
		rule.EscalateToRole, nullableInt(rule.TimeThresholdHours), rule.CustomPredicate,
		rule.IsActive, rule.ID)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// SetActive toggles a rule. The next sweep reads the new state; a sweep
// already in flight finishes with the rule set it loaded.
func (r *EscalationRuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := database.ConvertPlaceholders(`UPDATE escalation_rules SET is_active = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Referenced reports whether any event points at the rule.
func (r *EscalationRuleRepository) Referenced(ctx context.Context, id string) (bool, error) {
	query := database.ConvertPlaceholders(`
		SELECT EXISTS(SELECT 1 FROM escalation_events WHERE rule_id = ? LIMIT 1)`)
	var exists bool
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

// Delete removes a rule that no event references. Referenced rules return
// ErrRuleReferenced; deleting them would orphan the audit trail, so they
// are disabled instead.
func (r *EscalationRuleRepository) Delete(ctx context.Context, id string) error {
	referenced, err := r.Referenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return ErrRuleReferenced
	}
	query := database.ConvertPlaceholders(`DELETE FROM escalation_rules WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.EscalationRule, error) {
	var rule models.EscalationRule
	var threshold sql.NullInt64
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &rule.EntityType,
		&rule.TriggerCondition, &rule.EscalateToRole, &threshold,
		&rule.CustomPredicate, &rule.IsActive, &rule.CreatedAt); err != nil {
		return nil, err
	}
	if threshold.Valid {
		v := int(threshold.Int64)
		rule.TimeThresholdHours = &v
	}
	return &rule, nil
}

func collectRules(rows *sql.Rows) ([]*models.EscalationRule, error) {
	var rules []*models.EscalationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
