package notifications

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/models"
)

// SQLDirectory resolves roles and addresses against the console's users
// table. It implements both RecipientResolver and UserDirectory.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory over the console database.
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// ResolveRecipient picks the longest-serving active user holding the role.
// Entity context is accepted for future per-portfolio routing but unused by
// this default implementation.
func (d *SQLDirectory) ResolveRecipient(ctx context.Context, role models.EscalationRole, _ models.EntityType, _ string) (string, error) {
	query := database.ConvertPlaceholders(`
		SELECT id FROM users
		WHERE role = ? AND is_active = ?
		ORDER BY created_at, id
		LIMIT 1`)
	var userID string
	err := d.db.QueryRowContext(ctx, query, role, true).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no active user holds role %q", role)
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// EmailFor returns the user's email address.
func (d *SQLDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	query := database.ConvertPlaceholders(`SELECT email FROM users WHERE id = ?`)
	var email string
	err := d.db.QueryRowContext(ctx, query, userID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown user %q", userID)
	}
	if err != nil {
		return "", err
	}
	return email, nil
}

// StaticResolver maps roles to fixed user IDs. Used in tests and small
// single-team deployments configured from file.
type StaticResolver map[models.EscalationRole]string

// ResolveRecipient returns the configured user for the role.
func (r StaticResolver) ResolveRecipient(_ context.Context, role models.EscalationRole, _ models.EntityType, _ string) (string, error) {
	userID, ok := r[role]
	if !ok || userID == "" {
		return "", fmt.Errorf("no recipient configured for role %q", role)
	}
	return userID, nil
}

// OverrideResolver consults the static overrides first and falls back to
// the directory for roles without one.
type OverrideResolver struct {
	Overrides StaticResolver
	Fallback  RecipientResolver
}

// ResolveRecipient resolves via the override map, then the fallback.
func (r *OverrideResolver) ResolveRecipient(ctx context.Context, role models.EscalationRole, entityType models.EntityType, entityID string) (string, error) {
	if userID, ok := r.Overrides[role]; ok && userID != "" {
		return userID, nil
	}
	if r.Fallback == nil {
		return "", fmt.Errorf("no recipient configured for role %q", role)
	}
	return r.Fallback.ResolveRecipient(ctx, role, entityType, entityID)
}
