package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/models"
)

func TestEscalationRuleRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		rule := &models.EscalationRule{
			Name:               "Maintenance SLA breach",
			Description:        "Escalate overdue maintenance requests",
			EntityType:         models.EntityMaintenance,
			TriggerCondition:   models.TriggerSLABreach,
			EscalateToRole:     models.RoleManager,
			TimeThresholdHours: intPtr(4),
			IsActive:           true,
		}
		require.NoError(t, repo.Create(ctx, rule))
		require.NotEmpty(t, rule.ID)
		require.False(t, rule.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, rule.Name, got.Name)
		assert.Equal(t, models.EntityMaintenance, got.EntityType)
		assert.Equal(t, models.TriggerSLABreach, got.TriggerCondition)
		require.NotNil(t, got.TimeThresholdHours)
		assert.Equal(t, 4, *got.TimeThresholdHours)
		assert.True(t, got.IsActive)
	})

	t.Run("Create_RejectsUnknownEnum", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		err := repo.Create(ctx, &models.EscalationRule{
			Name:             "bad",
			EntityType:       "parking",
			TriggerCondition: models.TriggerOverdue,
			EscalateToRole:   models.RoleManager,
		})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "entity_type", verr.Field)
	})

	t.Run("Create_RejectsNegativeThreshold", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		err := repo.Create(ctx, &models.EscalationRule{
			Name:               "bad threshold",
			EntityType:         models.EntityCompliance,
			TriggerCondition:   models.TriggerOverdue,
			EscalateToRole:     models.RoleDirector,
			TimeThresholdHours: intPtr(-1),
		})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "time_threshold_hours", verr.Field)
	})

	t.Run("ListActive_FiltersInactiveAndType", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		active := &models.EscalationRule{
			Name:             "active maintenance",
			EntityType:       models.EntityMaintenance,
			TriggerCondition: models.TriggerHighPriorityUnassigned,
			EscalateToRole:   models.RoleManager,
			IsActive:         true,
		}
		inactive := &models.EscalationRule{
			Name:             "disabled maintenance",
			EntityType:       models.EntityMaintenance,
			TriggerCondition: models.TriggerOverdue,
			EscalateToRole:   models.RoleManager,
			IsActive:         false,
		}
		legal := &models.EscalationRule{
			Name:             "active legal",
			EntityType:       models.EntityLegalCase,
			TriggerCondition: models.TriggerStatusStale,
			EscalateToRole:   models.RoleLegalHead,
			TimeThresholdHours: intPtr(48),
			IsActive:         true,
		}
		for _, rule := range []*models.EscalationRule{active, inactive, legal} {
			require.NoError(t, repo.Create(ctx, rule))
		}

		all, err := repo.ListActive(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)

		maint, err := repo.ListActive(ctx, models.EntityMaintenance)
		require.NoError(t, err)
		require.Len(t, maint, 1)
		assert.Equal(t, active.ID, maint[0].ID)
	})

	t.Run("Update_Partial", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		rule := &models.EscalationRule{
			Name:               "stale inspections",
			EntityType:         models.EntityInspection,
			TriggerCondition:   models.TriggerStatusStale,
			EscalateToRole:     models.RoleOperationsHead,
			TimeThresholdHours: intPtr(24),
			IsActive:           true,
		}
		require.NoError(t, repo.Create(ctx, rule))

		name := "stale inspections v2"
		updated, err := repo.Update(ctx, rule.ID, RulePatch{
			Name:               &name,
			TimeThresholdHours: intPtr(36),
		})
		require.NoError(t, err)
		assert.Equal(t, "stale inspections v2", updated.Name)
		assert.Equal(t, 36, *updated.TimeThresholdHours)
		// Untouched fields survive.
		assert.Equal(t, models.EntityInspection, updated.EntityType)
		assert.True(t, updated.IsActive)
	})

	t.Run("Update_RejectsThresholdChangeForCustom", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		rule := &models.EscalationRule{
			Name:             "custom legal check",
			EntityType:       models.EntityLegalCase,
			TriggerCondition: models.TriggerCustom,
			CustomPredicate:  "legal.hearing_imminent",
			EscalateToRole:   models.RoleLegalHead,
			IsActive:         true,
		}
		require.NoError(t, repo.Create(ctx, rule))

		_, err := repo.Update(ctx, rule.ID, RulePatch{TimeThresholdHours: intPtr(12)})
		require.ErrorIs(t, err, ErrThresholdImmutable)

		_, err = repo.Update(ctx, rule.ID, RulePatch{ClearThreshold: true})
		require.ErrorIs(t, err, ErrThresholdImmutable)
	})

	t.Run("SetActive", func(t *testing.T) {
		repo := NewEscalationRuleRepository(newTestDB(t))

		rule := &models.EscalationRule{
			Name:             "toggle me",
			EntityType:       models.EntitySupportTicket,
			TriggerCondition: models.TriggerHighPriorityUnassigned,
			EscalateToRole:   models.RoleAdmin,
			IsActive:         true,
		}
		require.NoError(t, repo.Create(ctx, rule))

		require.NoError(t, repo.SetActive(ctx, rule.ID, false))
		got, err := repo.GetByID(ctx, rule.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		assert.ErrorIs(t, repo.SetActive(ctx, "missing", true), sql.ErrNoRows)
	})

	t.Run("Delete_RefusedWhenReferenced", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewEscalationRuleRepository(db)
		events := NewEscalationEventRepository(db)

		rule := &models.EscalationRule{
			Name:             "referenced",
			EntityType:       models.EntityConstruction,
			TriggerCondition: models.TriggerOverdue,
			EscalateToRole:   models.RoleDirector,
			IsActive:         true,
		}
		require.NoError(t, repo.Create(ctx, rule))

		created, err := events.Insert(ctx, &models.EscalationEvent{
			RuleID:      &rule.ID,
			EntityType:  models.EntityConstruction,
			EntityID:    "c-1",
			EntityTitle: "Roof works",
			EscalatedTo: "user-7",
			Reason:      "overdue",
		})
		require.NoError(t, err)
		require.True(t, created)

		assert.ErrorIs(t, repo.Delete(ctx, rule.ID), ErrRuleReferenced)

		// Soft-disable remains available.
		require.NoError(t, repo.SetActive(ctx, rule.ID, false))
	})
}
