package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/models"
)

// openConflictTarget is the conflict clause PostgreSQL needs to address the
// partial unique index over open events. MySQL and SQLite ignore it.
const openConflictTarget = `(rule_id, entity_id) WHERE NOT acknowledged`

// EscalationEventRepository handles database operations for escalation
// events. It is also the deduplication tracker: "an open event exists" is
// computed from this table, never from a second source of truth.
type EscalationEventRepository struct {
	db *sql.DB
}

// NewEscalationEventRepository creates a new escalation event repository.
func NewEscalationEventRepository(db *sql.DB) *EscalationEventRepository {
	return &EscalationEventRepository{db: db}
}

const eventColumns = `id, rule_id, entity_type, entity_id, entity_title, escalated_to,
	COALESCE(reason, ''), acknowledged, acknowledged_by, acknowledged_at,
	delivery_status, created_at`

// Insert writes an event through the dedup-safe insert-or-ignore path.
// It returns false when an open event for the same (rule, entity) pair
// already exists; the caller treats that as a no-op success. Manual events
// (nil rule ID) never conflict.
func (r *EscalationEventRepository) Insert(ctx context.Context, event *models.EscalationEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.DeliveryStatus == "" {
		event.DeliveryStatus = models.DeliveryPending
	}

	query := database.InsertIgnore(database.ConvertPlaceholders(`
		INSERT INTO escalation_events
			(id, rule_id, entity_type, entity_id, entity_title, escalated_to,
			 reason, acknowledged, delivery_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), openConflictTarget)

	result, err := r.db.ExecContext(ctx, query,
		event.ID, nullableString(event.RuleID), event.EntityType, event.EntityID,
		event.EntityTitle, event.EscalatedTo, event.Reason, event.Acknowledged,
		event.DeliveryStatus, event.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasOpenEvent reports whether an unacknowledged event exists for the pair.
// The atomic enforcement lives in Insert; this is the read-side check.
func (r *EscalationEventRepository) HasOpenEvent(ctx context.Context, ruleID, entityID string) (bool, error) {
	query := database.ConvertPlaceholders(`
		SELECT EXISTS(
			SELECT 1 FROM escalation_events
			WHERE rule_id = ? AND entity_id = ? AND acknowledged = ?
			LIMIT 1
		)`)
	var exists bool
	err := r.db.QueryRowContext(ctx, query, ruleID, entityID, false).Scan(&exists)
	return exists, err
}

// GetByID returns a single event, or sql.ErrNoRows.
func (r *EscalationEventRepository) GetByID(ctx context.Context, id string) (*models.EscalationEvent, error) {
	query := database.ConvertPlaceholders(`SELECT ` + eventColumns + ` FROM escalation_events WHERE id = ?`)
	return scanEvent(r.db.QueryRowContext(ctx, query, id))
}

// ListRecent returns events most recent first. A limit of 0 applies the
// default page size of 100.
func (r *EscalationEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.EscalationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := database.ConvertPlaceholders(`
		SELECT ` + eventColumns + ` FROM escalation_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.EscalationEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Acknowledge marks an event acknowledged and returns the updated record.
// Acknowledging an already-acknowledged event returns the existing record
// unchanged; acknowledgment is not a resource that can conflict.
func (r *EscalationEventRepository) Acknowledge(ctx context.Context, id, by string) (*models.EscalationEvent, error) {
	query := database.ConvertPlaceholders(`
		UPDATE escalation_events
		SET acknowledged = ?, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = ?
	`)
	if _, err := r.db.ExecContext(ctx, query, true, nullIfEmpty(by), time.Now().UTC(), id, false); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SetDeliveryStatus records the outcome of the notification dispatch. A
// failed dispatch never rolls the event back; the event itself is the
// durable record of the escalation.
func (r *EscalationEventRepository) SetDeliveryStatus(ctx context.Context, id, status string) error {
	query := database.ConvertPlaceholders(`UPDATE escalation_events SET delivery_status = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// CountOpen returns the number of unacknowledged events, used by the
// service gauge.
func (r *EscalationEventRepository) CountOpen(ctx context.Context) (int, error) {
	query := database.ConvertPlaceholders(`SELECT COUNT(*) FROM escalation_events WHERE acknowledged = ?`)
	var n int
	err := r.db.QueryRowContext(ctx, query, false).Scan(&n)
	return n, err
}

func scanEvent(row rowScanner) (*models.EscalationEvent, error) {
	var event models.EscalationEvent
	var ruleID, ackBy sql.NullString
	var ackAt sql.NullTime
	if err := row.Scan(&event.ID, &ruleID, &event.EntityType, &event.EntityID,
		&event.EntityTitle, &event.EscalatedTo, &event.Reason, &event.Acknowledged,
		&ackBy, &ackAt, &event.DeliveryStatus, &event.CreatedAt); err != nil {
		return nil, err
	}
	if ruleID.Valid {
		event.RuleID = &ruleID.String
	}
	if ackBy.Valid {
		event.AcknowledgedBy = &ackBy.String
	}
	if ackAt.Valid {
		t := ackAt.Time
		event.AcknowledgedAt = &t
	}
	return &event, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
