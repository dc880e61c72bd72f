package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/models"
)

func newOpenEvent(ruleID *string, entityID string) *models.EscalationEvent {
	return &models.EscalationEvent{
		RuleID:      ruleID,
		EntityType:  models.EntityMaintenance,
		EntityID:    entityID,
		EntityTitle: "Boiler out of service",
		EscalatedTo: "user-42",
		Reason:      "SLA breached",
	}
}

func TestEscalationEventRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert_DeduplicatesOpenPair", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))
		ruleID := uuid.NewString()

		created, err := repo.Insert(ctx, newOpenEvent(&ruleID, "m1"))
		require.NoError(t, err)
		assert.True(t, created)

		// Same pair while the first event is open: suppressed.
		created, err = repo.Insert(ctx, newOpenEvent(&ruleID, "m1"))
		require.NoError(t, err)
		assert.False(t, created)

		// Different entity: allowed.
		created, err = repo.Insert(ctx, newOpenEvent(&ruleID, "m2"))
		require.NoError(t, err)
		assert.True(t, created)

		open, err := repo.HasOpenEvent(ctx, ruleID, "m1")
		require.NoError(t, err)
		assert.True(t, open)
	})

	t.Run("Insert_ManualEventsNeverDeduplicated", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))

		for i := 0; i < 3; i++ {
			created, err := repo.Insert(ctx, newOpenEvent(nil, "m1"))
			require.NoError(t, err)
			assert.True(t, created)
		}

		events, err := repo.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("Insert_ConcurrentWorkersSingleWinner", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))
		ruleID := uuid.NewString()

		var wg sync.WaitGroup
		results := make(chan bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := repo.Insert(ctx, newOpenEvent(&ruleID, "m1"))
				require.NoError(t, err)
				results <- created
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for created := range results {
			if created {
				wins++
			}
		}
		assert.Equal(t, 1, wins, "exactly one concurrent insert may win")
	})

	t.Run("Acknowledge_Idempotent", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))
		ruleID := uuid.NewString()

		event := newOpenEvent(&ruleID, "m1")
		created, err := repo.Insert(ctx, event)
		require.NoError(t, err)
		require.True(t, created)

		first, err := repo.Acknowledge(ctx, event.ID, "ops-lead")
		require.NoError(t, err)
		assert.True(t, first.Acknowledged)
		require.NotNil(t, first.AcknowledgedBy)
		assert.Equal(t, "ops-lead", *first.AcknowledgedBy)
		require.NotNil(t, first.AcknowledgedAt)

		// Second acknowledgment returns the record unchanged.
		second, err := repo.Acknowledge(ctx, event.ID, "someone-else")
		require.NoError(t, err)
		assert.Equal(t, *first.AcknowledgedBy, *second.AcknowledgedBy)
		assert.Equal(t, first.AcknowledgedAt.Unix(), second.AcknowledgedAt.Unix())
	})

	t.Run("Acknowledge_ClearsDedupLock", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))
		ruleID := uuid.NewString()

		event := newOpenEvent(&ruleID, "m1")
		created, err := repo.Insert(ctx, event)
		require.NoError(t, err)
		require.True(t, created)

		_, err = repo.Acknowledge(ctx, event.ID, "ops-lead")
		require.NoError(t, err)

		open, err := repo.HasOpenEvent(ctx, ruleID, "m1")
		require.NoError(t, err)
		assert.False(t, open)

		// The pair may fire again once acknowledged.
		created, err = repo.Insert(ctx, newOpenEvent(&ruleID, "m1"))
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("ListRecent_MostRecentFirst", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))

		for _, id := range []string{"m1", "m2", "m3"} {
			_, err := repo.Insert(ctx, newOpenEvent(nil, id))
			require.NoError(t, err)
		}

		events, err := repo.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.False(t, events[0].CreatedAt.Before(events[1].CreatedAt))
	})

	t.Run("SetDeliveryStatus", func(t *testing.T) {
		repo := NewEscalationEventRepository(newTestDB(t))

		event := newOpenEvent(nil, "m1")
		_, err := repo.Insert(ctx, event)
		require.NoError(t, err)

		require.NoError(t, repo.SetDeliveryStatus(ctx, event.ID, models.DeliveryFailed))
		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryFailed, got.DeliveryStatus)
	})
}
