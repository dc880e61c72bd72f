package repository

import (
	"context"
	"database/sql"

	"github.com/propdesk/propdesk/internal/database"
)

// Schema returns the DDL for the escalation tables for the given driver.
// The open-event uniqueness constraint is the storage-level enforcement of
// the "one open event per (rule, entity)" invariant: concurrent sweep
// workers race through insert-or-ignore instead of an application lock, so
// the engine stays correct when run as multiple replicas.
//
// PostgreSQL and SQLite use a partial unique index over unacknowledged
// rows. MySQL has no partial indexes, so a stored generated column carries
// the rule ID only while the event is open and is NULL afterwards; NULL
// values never collide in a unique index, which also exempts manual events
// (rule_id IS NULL) from deduplication on every driver.
func Schema(driver string) []string {
	rules := `
		CREATE TABLE IF NOT EXISTS escalation_rules (
			id                   VARCHAR(36) PRIMARY KEY,
			name                 VARCHAR(200) NOT NULL,
			description          TEXT,
			entity_type          VARCHAR(32) NOT NULL,
			trigger_condition    VARCHAR(32) NOT NULL,
			escalate_to_role     VARCHAR(32) NOT NULL,
			time_threshold_hours INTEGER,
			custom_predicate     VARCHAR(200) NOT NULL DEFAULT '',
			is_active            BOOLEAN NOT NULL DEFAULT TRUE,
			created_at           TIMESTAMP NOT NULL
		)`

	events := `
		CREATE TABLE IF NOT EXISTS escalation_events (
			id              VARCHAR(36) PRIMARY KEY,
			rule_id         VARCHAR(36),
			entity_type     VARCHAR(32) NOT NULL,
			entity_id       VARCHAR(64) NOT NULL,
			entity_title    VARCHAR(255) NOT NULL DEFAULT '',
			escalated_to    VARCHAR(64) NOT NULL,
			reason          TEXT,
			acknowledged    BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by VARCHAR(64),
			acknowledged_at TIMESTAMP,
			delivery_status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at      TIMESTAMP NOT NULL
		)`

	recentIdx := `CREATE INDEX IF NOT EXISTS idx_escalation_events_created
		ON escalation_events (created_at)`

	switch driver {
	case "mysql":
		events = `
		CREATE TABLE IF NOT EXISTS escalation_events (
			id              VARCHAR(36) PRIMARY KEY,
			rule_id         VARCHAR(36),
			entity_type     VARCHAR(32) NOT NULL,
			entity_id       VARCHAR(64) NOT NULL,
			entity_title    VARCHAR(255) NOT NULL DEFAULT '',
			reason          TEXT,
			escalated_to    VARCHAR(64) NOT NULL,
			acknowledged    TINYINT(1) NOT NULL DEFAULT 0,
			acknowledged_by VARCHAR(64),
			acknowledged_at TIMESTAMP NULL,
			delivery_status VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at      TIMESTAMP NOT NULL,
			open_rule_id    VARCHAR(36) GENERATED ALWAYS AS
				(IF(acknowledged = 0, rule_id, NULL)) STORED,
			UNIQUE KEY uq_escalation_open (open_rule_id, entity_id),
			KEY idx_escalation_events_created (created_at)
		)`
		return []string{rules, events}
	case "postgres":
		openIdx := `CREATE UNIQUE INDEX IF NOT EXISTS uq_escalation_open
			ON escalation_events (rule_id, entity_id) WHERE NOT acknowledged`
		return []string{rules, events, openIdx, recentIdx}
	default: // sqlite3
		openIdx := `CREATE UNIQUE INDEX IF NOT EXISTS uq_escalation_open
			ON escalation_events (rule_id, entity_id) WHERE acknowledged = 0`
		return []string{rules, events, openIdx, recentIdx}
	}
}

// EnsureSchema creates the escalation tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema(database.Driver()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
