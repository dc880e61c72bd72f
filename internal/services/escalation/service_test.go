package escalation

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/notifications"
	"github.com/propdesk/propdesk/internal/repository"
	"github.com/propdesk/propdesk/internal/snapshot"
)

type engineFixture struct {
	service    *Service
	rules      *repository.EscalationRuleRepository
	events     *repository.EscalationEventRepository
	provider   *snapshot.MemoryProvider
	dispatcher *notifications.MemoryDispatcher
	now        time.Time
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	database.SetDriver("sqlite3")

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.EnsureSchema(context.Background(), db))

	f := &engineFixture{
		rules:      repository.NewEscalationRuleRepository(db),
		events:     repository.NewEscalationEventRepository(db),
		provider:   snapshot.NewMemoryProvider(),
		dispatcher: notifications.NewMemoryDispatcher(),
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	base := []Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithDispatcher(f.dispatcher),
		WithRecipientResolver(notifications.StaticResolver{
			models.RoleManager:   "user-manager",
			models.RoleDirector:  "user-director",
			models.RoleLegalHead: "user-legal",
		}),
		WithClock(func() time.Time { return f.now }),
		WithWorkers(2),
	}
	f.service = New(f.rules, f.events, f.provider, append(base, opts...)...)
	return f
}

func (f *engineFixture) createRule(t *testing.T, rule *models.EscalationRule) *models.EscalationRule {
	t.Helper()
	require.NoError(t, f.rules.Create(context.Background(), rule))
	return rule
}

// waitDispatches blocks until the fire-and-forget delivery goroutines from
// previous sweeps have finished.
func (f *engineFixture) waitDispatches() {
	f.service.dispatchWG.Wait()
}

func TestRunSweep_EndToEnd(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.createRule(t, &models.EscalationRule{
		Name:             "Maintenance SLA",
		EntityType:       models.EntityMaintenance,
		TriggerCondition: models.TriggerSLABreach,
		EscalateToRole:   models.RoleManager,
		IsActive:         true,
	})

	due := f.now.Add(-24 * time.Hour)
	f.provider.Set(models.EntityMaintenance, models.EntitySnapshot{
		EntityType:         models.EntityMaintenance,
		EntityID:           "m1",
		Title:              "Broken lift",
		Status:             "open",
		Priority:           "normal",
		CreatedAt:          f.now.Add(-48 * time.Hour),
		LastStatusChangeAt: f.now.Add(-48 * time.Hour),
		DueOrSLAAt:         &due,
	})

	// First sweep: exactly one event, dispatched to the resolved manager.
	result, err := f.service.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 1, result.Matches)
	assert.Equal(t, 1, result.EventsEmitted)
	assert.Equal(t, 0, result.Suppressed)
	assert.Empty(t, result.Errors)

	f.waitDispatches()
	dispatched := f.dispatcher.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "user-manager", dispatched[0].EscalatedTo)
	assert.Equal(t, "m1", dispatched[0].EntityID)
	assert.Contains(t, dispatched[0].Reason, "SLA")

	events, err := f.events.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.DeliverySent, events[0].DeliveryStatus)

	// Second sweep: the pair is still open, so it is suppressed.
	result, err = f.service.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Matches)
	assert.Equal(t, 0, result.EventsEmitted)
	assert.Equal(t, 1, result.Suppressed)

	events, err = f.events.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Acknowledge, then sweep again: the condition still holds, so a fresh
	// event fires.
	_, err = f.events.Acknowledge(ctx, events[0].ID, "user-admin")
	require.NoError(t, err)

	result, err = f.service.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsEmitted)

	events, err = f.events.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	f.waitDispatches()
}

func TestRunSweep_InactiveRulesNeverFire(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	rule := f.createRule(t, &models.EscalationRule{
		Name:             "Dormant rule",
		EntityType:       models.EntityMaintenance,
		TriggerCondition: models.TriggerSLABreach,
		EscalateToRole:   models.RoleManager,
		IsActive:         true,
	})
	require.NoError(t, f.rules.SetActive(ctx, rule.ID, false))

	due := f.now.Add(-time.Hour)
	f.provider.Set(models.EntityMaintenance, models.EntitySnapshot{
		EntityType:         models.EntityMaintenance,
		EntityID:           "m1",
		Title:              "Broken lift",
		Status:             "open",
		CreatedAt:          f.now.Add(-48 * time.Hour),
		LastStatusChangeAt: f.now.Add(-48 * time.Hour),
		DueOrSLAAt:         &due,
	})

	result, err := f.service.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RulesEvaluated)
	assert.Equal(t, 0, result.EventsEmitted)
}

func TestRunSweep_DomainFailureIsolation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.createRule(t, &models.EscalationRule{
		Name:             "Legal stale",
		EntityType:       models.EntityLegalCase,
		TriggerCondition: models.TriggerStatusStale,
		EscalateToRole:   models.RoleLegalHead,
		IsActive:         true,
		TimeThresholdHours: func() *int {
			h := 24
			return &h
		}(),
	})
	f.createRule(t, &models.EscalationRule{
		Name:             "Inspection overdue",
		EntityType:       models.EntityInspection,
		TriggerCondition: models.TriggerOverdue,
		EscalateToRole:   models.RoleDirector,
		IsActive:         true,
	})

	f.provider.Fail(models.EntityLegalCase, errors.New("legal store unavailable"))
	due := f.now.Add(-6 * time.Hour)
	f.provider.Set(models.EntityInspection, models.EntitySnapshot{
		EntityType:         models.EntityInspection,
		EntityID:           "i9",
		Title:              "Fire safety inspection",
		Status:             "scheduled",
		CreatedAt:          f.now.Add(-240 * time.Hour),
		LastStatusChangeAt: f.now.Add(-240 * time.Hour),
		DueOrSLAAt:         &due,
	})

	result, err := f.service.RunSweep(ctx)
	require.NoError(t, err)

	// The failing domain is recorded and skipped; the healthy one proceeds.
	assert.Contains(t, result.SkippedDomains, string(models.EntityLegalCase))
	assert.Equal(t, 1, result.EventsEmitted)

	f.waitDispatches()
	dispatched := f.dispatcher.Dispatched()
	require.Len(t, dispatched, 1)
	assert.Equal(t, "i9", dispatched[0].EntityID)
}

func TestRunSweep_OnlyOneAtATime(t *testing.T) {
	f := newEngineFixture(t)

	f.service.running.Store(true)
	_, err := f.service.RunSweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	f.service.running.Store(false)
	assert.Equal(t, StateIdle, f.service.Status())
}

func TestRunSweep_DistinctEntitiesEscalateIndependently(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.createRule(t, &models.EscalationRule{
		Name:             "Urgent unassigned tickets",
		EntityType:       models.EntitySupportTicket,
		TriggerCondition: models.TriggerHighPriorityUnassigned,
		EscalateToRole:   models.RoleManager,
		IsActive:         true,
	})

	f.provider.Set(models.EntitySupportTicket,
		models.EntitySnapshot{
			EntityType:         models.EntitySupportTicket,
			EntityID:           "t1",
			Title:              "Portal down",
			Status:             "open",
			Priority:           "urgent",
			CreatedAt:          f.now.Add(-time.Hour),
			LastStatusChangeAt: f.now.Add(-time.Hour),
		},
		models.EntitySnapshot{
			EntityType:         models.EntitySupportTicket,
			EntityID:           "t2",
			Title:              "Billing dispute",
			Status:             "open",
			Priority:           "high",
			CreatedAt:          f.now.Add(-time.Hour),
			LastStatusChangeAt: f.now.Add(-time.Hour),
		},
	)

	result, err := f.service.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.EventsEmitted)
	f.waitDispatches()
}

func TestRunSweep_CustomPredicate(t *testing.T) {
	run := func(t *testing.T, opts ...Option) (*engineFixture, *SweepResult) {
		f := newEngineFixture(t, opts...)
		f.createRule(t, &models.EscalationRule{
			Name:             "Hearing imminent",
			EntityType:       models.EntityLegalCase,
			TriggerCondition: models.TriggerCustom,
			CustomPredicate:  "legal.hearing_imminent",
			EscalateToRole:   models.RoleLegalHead,
			IsActive:         true,
		})
		f.provider.Set(models.EntityLegalCase, models.EntitySnapshot{
			EntityType:         models.EntityLegalCase,
			EntityID:           "lc1",
			Title:              "Eviction appeal",
			Status:             "active",
			CreatedAt:          f.now.Add(-time.Hour),
			LastStatusChangeAt: f.now.Add(-time.Hour),
		})
		result, err := f.service.RunSweep(context.Background())
		require.NoError(t, err)
		return f, result
	}

	t.Run("resolver decides the match", func(t *testing.T) {
		f, result := run(t, WithPredicateResolver(predicateFunc(
			func(_ context.Context, name string, _ models.EntitySnapshot) (bool, error) {
				return name == "legal.hearing_imminent", nil
			})))
		assert.Equal(t, 1, result.EventsEmitted)
		f.waitDispatches()
	})

	t.Run("absent resolver records an error", func(t *testing.T) {
		_, result := run(t)
		assert.Equal(t, 0, result.EventsEmitted)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "no predicate resolver")
	})
}

func TestDispatchFailureRecordedNotFatal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.dispatcher.FailWith(errors.New("smtp refused"))

	event, err := f.service.EmitManual(ctx, models.EntityCompliance, "c4", "GDPR audit", "user-director", "board request")
	require.NoError(t, err)
	f.waitDispatches()

	got, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, got.DeliveryStatus)
}

func TestEmitManual(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	t.Run("never deduplicated", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := f.service.EmitManual(ctx, models.EntityConstruction, "b7", "Tower B fit-out", "user-director", "contractor walked off site")
			require.NoError(t, err)
		}
		events, err := f.events.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("validates input", func(t *testing.T) {
		_, err := f.service.EmitManual(ctx, "warehouse", "x", "t", "u", "r")
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "entity_type", verr.Field)

		_, err = f.service.EmitManual(ctx, models.EntityConstruction, "b7", "t", "u", "")
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "reason", verr.Field)
	})
	f.waitDispatches()
}

type predicateFunc func(ctx context.Context, name string, snap models.EntitySnapshot) (bool, error)

func (f predicateFunc) Evaluate(ctx context.Context, name string, snap models.EntitySnapshot) (bool, error) {
	return f(ctx, name, snap)
}
