package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/propdesk/propdesk/internal/models"
)

// entityQueries normalizes each console domain table to the snapshot
// columns. The engine owns none of these tables; the selects are the whole
// contract with the console schema.
var entityQueries = map[models.EntityType]string{
	models.EntityMaintenance: `
		SELECT 'maintenance' AS entity_type, id AS entity_id, title, status, priority,
			assigned_to AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, sla_due_at AS due_or_sla_at
		FROM maintenance_requests`,
	models.EntitySupportTicket: `
		SELECT 'support_ticket' AS entity_type, id AS entity_id, subject AS title, status, priority,
			assigned_to AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, sla_due_at AS due_or_sla_at
		FROM support_tickets`,
	models.EntityLegalCase: `
		SELECT 'legal_case' AS entity_type, id AS entity_id, title, status, priority,
			assigned_lawyer AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, next_hearing_at AS due_or_sla_at
		FROM legal_cases`,
	models.EntityCompliance: `
		SELECT 'compliance' AS entity_type, id AS entity_id, requirement AS title, status, priority,
			assigned_to AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, due_date AS due_or_sla_at
		FROM compliance_checks`,
	models.EntityInspection: `
		SELECT 'inspection' AS entity_type, id AS entity_id, title, status, priority,
			inspector_id AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, scheduled_for AS due_or_sla_at
		FROM inspections`,
	models.EntityConstruction: `
		SELECT 'construction' AS entity_type, id AS entity_id, name AS title, status, priority,
			project_manager AS assignee_id, created_at,
			status_changed_at AS last_status_change_at, deadline AS due_or_sla_at
		FROM construction_projects`,
}

// SQLProvider reads entity snapshots straight from the console database.
type SQLProvider struct {
	db *sqlx.DB
}

// NewSQLProvider creates a provider over the console database connection.
func NewSQLProvider(db *sqlx.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

// Snapshots fetches every non-terminal entity of the type in one query.
// The sweep fetches each type once per cycle, not once per rule.
func (p *SQLProvider) Snapshots(ctx context.Context, entityType models.EntityType) ([]models.EntitySnapshot, error) {
	base, ok := entityQueries[entityType]
	if !ok {
		return nil, fmt.Errorf("snapshot provider: unknown entity type %q", entityType)
	}

	terminal := []string{"completed", "resolved", "closed", "cancelled"}
	query := base + ` WHERE status NOT IN (?)`
	query, args, err := sqlx.In(query, terminal)
	if err != nil {
		return nil, fmt.Errorf("snapshot provider %s: %w", entityType, err)
	}
	query = p.db.Rebind(query)

	var snapshots []models.EntitySnapshot
	if err := p.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		return nil, fmt.Errorf("snapshot provider %s: %w", entityType, err)
	}
	// Collapse empty-string assignees to nil so matchers see one shape.
	for i := range snapshots {
		if snapshots[i].AssigneeID != nil && strings.TrimSpace(*snapshots[i].AssigneeID) == "" {
			snapshots[i].AssigneeID = nil
		}
	}
	return snapshots, nil
}
