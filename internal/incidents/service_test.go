package incidents

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/statusdeck-dev/statusdeck/internal/auth"
	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	viewer    = Actor{ID: 10, TenantID: 1, Role: auth.RoleViewer}
	editor    = Actor{ID: 11, TenantID: 1, Role: auth.RoleEditor}
	commander = Actor{ID: 12, TenantID: 1, Role: auth.RoleIncidentCommander}
	admin     = Actor{ID: 13, TenantID: 1, Role: auth.RoleAdmin}
)

func newTestService() (*Service, *memStore) {
	st := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, RoleAuthorizer{}, logger), st
}

func mustCreate(t *testing.T, svc *Service, severity types.IncidentSeverity, refs ...types.EntityRef) *models.Incident {
	t.Helper()
	incident, err := svc.Create(context.Background(), editor, CreateParams{
		Title:      "Elevated error rate",
		Severity:   severity,
		ImpactType: types.ImpactAvailability,
		Entities:   refs,
	})
	require.NoError(t, err)
	return incident
}

func TestCreateIncident(t *testing.T) {
	ctx := context.Background()
	s1 := types.EntityRef{Type: types.EntityService, ID: "S1"}

	t.Run("critical incident takes the entity to major_outage", func(t *testing.T) {
		svc, st := newTestService()

		incident := mustCreate(t, svc, types.SeverityCritical, s1)

		assert.Equal(t, types.StatusInvestigating, incident.Status)
		assert.Nil(t, incident.ResolvedAt)
		assert.Equal(t, types.StatusMajorOutage, st.statuses[s1])

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.EntryStatusChange, entries[0].EntryType)
		require.NotNil(t, entries[0].CreatedBy)
		assert.Equal(t, editor.ID, *entries[0].CreatedBy)
	})

	t.Run("duplicate entity refs collapse to one link", func(t *testing.T) {
		svc, st := newTestService()

		mustCreate(t, svc, types.SeverityMinor, s1, s1)
		assert.Len(t, st.links, 1)
	})

	t.Run("viewer cannot create", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Create(ctx, viewer, CreateParams{
			Title:      "nope",
			Severity:   types.SeverityMinor,
			ImpactType: types.ImpactPerformance,
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("rejects unknown severity", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.Create(ctx, editor, CreateParams{
			Title:      "bad",
			Severity:   types.IncidentSeverity("catastrophic"),
			ImpactType: types.ImpactPerformance,
		})
		assert.Error(t, err)
	})
}

func TestCreateRollsBackOnCascadeFailure(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()

	ok := types.EntityRef{Type: types.EntityService, ID: "healthy"}
	broken := types.EntityRef{Type: types.EntityResource, ID: "unreachable"}
	st.failSetStatus[broken] = errors.New("catalog unavailable")

	_, err := svc.Create(ctx, editor, CreateParams{
		Title:      "Partial failure",
		Severity:   types.SeverityCritical,
		ImpactType: types.ImpactAvailability,
		Entities:   []types.EntityRef{ok, broken},
	})

	var cascadeErr *CascadeError
	require.ErrorAs(t, err, &cascadeErr)
	assert.Equal(t, broken, cascadeErr.Ref)

	// The whole batch rolled back: no incident, no links, no timeline,
	// and the healthy entity kept its status even if it was written
	// before the failing one.
	assert.Empty(t, st.incidents)
	assert.Empty(t, st.links)
	assert.Empty(t, st.timeline)
	assert.NotContains(t, st.statuses, ok)
}

func TestAdvanceLifecycle(t *testing.T) {
	ctx := context.Background()
	c1 := types.EntityRef{Type: types.EntityComponent, ID: "C1"}

	t.Run("forward flow sets resolved_at only at resolution", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, c1)

		incident, err := svc.Advance(ctx, commander, incident.ID, types.StatusIdentified, "root cause found")
		require.NoError(t, err)
		assert.Equal(t, types.StatusIdentified, incident.Status)
		assert.Nil(t, incident.ResolvedAt)

		incident, err = svc.Advance(ctx, commander, incident.ID, types.StatusMonitoring, "")
		require.NoError(t, err)
		assert.Nil(t, incident.ResolvedAt)

		incident, err = svc.Resolve(ctx, commander, incident.ID, "fix deployed")
		require.NoError(t, err)
		assert.Equal(t, types.StatusResolved, incident.Status)
		assert.NotNil(t, incident.ResolvedAt)
	})

	t.Run("resolving the only incident returns the entity to operational", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, c1)
		require.Equal(t, types.StatusDegraded, st.statuses[c1])

		_, err := svc.Resolve(ctx, commander, incident.ID, "")
		require.NoError(t, err)
		assert.Equal(t, types.StatusOperational, st.statuses[c1])
	})

	t.Run("resolving one of two incidents leaves the worst of the rest", func(t *testing.T) {
		svc, st := newTestService()
		r1 := types.EntityRef{Type: types.EntityResource, ID: "R1"}

		major := mustCreate(t, svc, types.SeverityMajor, r1)
		critical := mustCreate(t, svc, types.SeverityCritical, r1)
		require.Equal(t, types.StatusMajorOutage, st.statuses[r1])

		_, err := svc.Resolve(ctx, commander, critical.ID, "")
		require.NoError(t, err)
		assert.Equal(t, types.StatusDegraded, st.statuses[r1])

		_, err = svc.Resolve(ctx, commander, major.ID, "")
		require.NoError(t, err)
		assert.Equal(t, types.StatusOperational, st.statuses[r1])
	})

	t.Run("illegal transition leaves everything untouched", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, c1)
		_, err := svc.Resolve(ctx, commander, incident.ID, "")
		require.NoError(t, err)

		_, err = svc.Advance(ctx, commander, incident.ID, types.StatusIdentified, "")
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, types.StatusResolved, invalid.Current)
		assert.Equal(t, types.StatusIdentified, invalid.Requested)
		assert.Equal(t, []types.IncidentStatus{types.StatusInvestigating}, invalid.Allowed)

		stored, err := svc.Get(ctx, viewer, incident.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusResolved, stored.Status)
		assert.NotNil(t, stored.ResolvedAt)
		assert.Equal(t, types.StatusOperational, st.statuses[c1])
	})

	t.Run("editor cannot advance", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, c1)

		_, err := svc.Advance(ctx, editor, incident.ID, types.StatusIdentified, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown incident", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.Advance(ctx, commander, 999, types.StatusIdentified, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()
	s2 := types.EntityRef{Type: types.EntityService, ID: "S2"}

	incident := mustCreate(t, svc, types.SeverityMajor, s2)
	_, err := svc.Resolve(ctx, commander, incident.ID, "")
	require.NoError(t, err)
	require.Equal(t, types.StatusOperational, st.statuses[s2])

	entriesBefore, err := svc.ListTimeline(ctx, viewer, incident.ID)
	require.NoError(t, err)

	incident, err = svc.Reopen(ctx, commander, incident.ID, "regression observed")
	require.NoError(t, err)

	assert.Equal(t, types.StatusInvestigating, incident.Status)
	assert.Nil(t, incident.ResolvedAt)
	// The reopened incident re-asserts its impact.
	assert.Equal(t, types.StatusDegraded, st.statuses[s2])

	entriesAfter, err := svc.ListTimeline(ctx, viewer, incident.ID)
	require.NoError(t, err)
	require.Len(t, entriesAfter, len(entriesBefore)+1)
	last := entriesAfter[len(entriesAfter)-1]
	assert.Equal(t, models.EntryStatusChange, last.EntryType)
	assert.Contains(t, last.Content, "resolved to investigating")
	assert.Contains(t, last.Content, "regression observed")
}

func TestAffectedEntityManagement(t *testing.T) {
	ctx := context.Background()
	web := types.EntityRef{Type: types.EntityService, ID: "web"}
	cache := types.EntityRef{Type: types.EntityComponent, ID: "cache"}

	t.Run("attach applies impact while open", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityCritical, web)

		require.NoError(t, svc.AddAffectedEntity(ctx, commander, incident.ID, cache))
		assert.Equal(t, types.StatusMajorOutage, st.statuses[cache])

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		assert.Equal(t, models.EntryEntityAdded, last.EntryType)
	})

	t.Run("attach is idempotent", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, web)

		require.NoError(t, svc.AddAffectedEntity(ctx, commander, incident.ID, web))
		assert.Len(t, st.links, 1)

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1) // creation entry only, no entity_added
	})

	t.Run("attach to a resolved incident records the link without impact", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityCritical, web)
		_, err := svc.Resolve(ctx, commander, incident.ID, "")
		require.NoError(t, err)

		require.NoError(t, svc.AddAffectedEntity(ctx, commander, incident.ID, cache))
		assert.NotContains(t, st.statuses, cache)
	})

	t.Run("detach recalculates the entity", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityCritical, web, cache)
		require.Equal(t, types.StatusMajorOutage, st.statuses[cache])

		require.NoError(t, svc.RemoveAffectedEntity(ctx, commander, incident.ID, cache))
		assert.Equal(t, types.StatusOperational, st.statuses[cache])
		assert.Equal(t, types.StatusMajorOutage, st.statuses[web])

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		assert.Equal(t, models.EntryEntityRemoved, last.EntryType)
	})

	t.Run("detach of an unknown link fails", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, web)

		err := svc.RemoveAffectedEntity(ctx, commander, incident.ID, cache)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("editor cannot attach or detach", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, web)

		assert.ErrorIs(t, svc.AddAffectedEntity(ctx, editor, incident.ID, cache), ErrUnauthorized)
		assert.ErrorIs(t, svc.RemoveAffectedEntity(ctx, editor, incident.ID, web), ErrUnauthorized)
	})
}

func TestUpdateSeverity(t *testing.T) {
	ctx := context.Background()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	t.Run("escalation worsens affected entities", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, api)
		require.Equal(t, types.StatusDegraded, st.statuses[api])

		incident, err := svc.UpdateSeverity(ctx, commander, incident.ID, types.SeverityCritical)
		require.NoError(t, err)
		assert.Equal(t, types.SeverityCritical, incident.Severity)
		assert.Equal(t, types.StatusMajorOutage, st.statuses[api])
	})

	t.Run("downgrade does not improve entities until recalculation", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityCritical, api)
		require.Equal(t, types.StatusMajorOutage, st.statuses[api])

		_, err := svc.UpdateSeverity(ctx, commander, incident.ID, types.SeverityMinor)
		require.NoError(t, err)
		// Worsening-only path: the entity stays where it is.
		assert.Equal(t, types.StatusMajorOutage, st.statuses[api])

		// Resolution recalculates and finally improves it.
		_, err = svc.Resolve(ctx, commander, incident.ID, "")
		require.NoError(t, err)
		assert.Equal(t, types.StatusOperational, st.statuses[api])
	})

	t.Run("no-op when severity is unchanged", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, api)

		_, err := svc.UpdateSeverity(ctx, commander, incident.ID, types.SeverityMajor)
		require.NoError(t, err)

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("records a timeline entry", func(t *testing.T) {
		svc, _ := newTestService()
		incident := mustCreate(t, svc, types.SeverityMinor, api)

		_, err := svc.UpdateSeverity(ctx, commander, incident.ID, types.SeverityMajor)
		require.NoError(t, err)

		entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		assert.Equal(t, models.EntryStatusChange, last.EntryType)
		assert.Contains(t, last.Content, "minor to major")
	})
}

func TestAddNoteAndTimelineOrdering(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	incident := mustCreate(t, svc, types.SeverityMajor, api)

	entry, err := svc.AddNote(ctx, editor, incident.ID, "mitigation in progress")
	require.NoError(t, err)
	assert.Equal(t, models.EntryNote, entry.EntryType)
	require.NotNil(t, entry.CreatedBy)
	assert.Equal(t, editor.ID, *entry.CreatedBy)

	_, err = svc.Advance(ctx, commander, incident.ID, types.StatusIdentified, "")
	require.NoError(t, err)
	_, err = svc.AddNote(ctx, editor, incident.ID, "dashboards green")
	require.NoError(t, err)

	entries, err := svc.ListTimeline(ctx, viewer, incident.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].OccurredAt.Before(entries[i-1].OccurredAt),
			"timeline must be non-decreasing in time")
	}

	// Append-only: a second read returns the same sequence.
	again, err := svc.ListTimeline(ctx, viewer, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	t.Run("viewer cannot add notes", func(t *testing.T) {
		_, err := svc.AddNote(ctx, viewer, incident.ID, "drive-by")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("empty note rejected", func(t *testing.T) {
		_, err := svc.AddNote(ctx, editor, incident.ID, "")
		assert.Error(t, err)
	})
}

func TestDeleteIncident(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	incident := mustCreate(t, svc, types.SeverityCritical, api)
	require.Equal(t, types.StatusMajorOutage, st.statuses[api])

	t.Run("commander cannot delete", func(t *testing.T) {
		assert.ErrorIs(t, svc.Delete(ctx, commander, incident.ID), ErrUnauthorized)
	})

	require.NoError(t, svc.Delete(ctx, admin, incident.ID))

	// A deleted incident stops counting toward worst-wins and is gone
	// from reads.
	assert.Equal(t, types.StatusOperational, st.statuses[api])
	_, err := svc.Get(ctx, viewer, incident.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSerializationRetry(t *testing.T) {
	ctx := context.Background()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	t.Run("one conflict is retried transparently", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, api)

		st.pendingConflicts = 1
		_, err := svc.Resolve(ctx, commander, incident.ID, "")
		require.NoError(t, err)
		assert.Equal(t, types.StatusOperational, st.statuses[api])
	})

	t.Run("a second conflict surfaces", func(t *testing.T) {
		svc, st := newTestService()
		incident := mustCreate(t, svc, types.SeverityMajor, api)

		st.pendingConflicts = 2
		_, err := svc.Resolve(ctx, commander, incident.ID, "")
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	incident := mustCreate(t, svc, types.SeverityMajor, api)

	outsider := Actor{ID: 99, TenantID: 2, Role: auth.RoleAdmin}
	_, err := svc.Get(ctx, outsider, incident.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Advance(ctx, outsider, incident.ID, types.StatusIdentified, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusMirrorReceivesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()
	api := types.EntityRef{Type: types.EntityService, ID: "api"}

	mirror := &recordingMirror{seen: make(map[types.EntityRef]types.OperationalStatus)}
	svc.WithMirror(mirror)

	incident := mustCreate(t, svc, types.SeverityCritical, api)
	assert.Equal(t, types.StatusMajorOutage, mirror.seen[api])

	_, err := svc.Resolve(ctx, commander, incident.ID, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOperational, mirror.seen[api])

	// Rolled-back changes never reach the mirror.
	broken := types.EntityRef{Type: types.EntityResource, ID: "broken"}
	st.failSetStatus[broken] = errors.New("down")
	_, err = svc.Create(ctx, editor, CreateParams{
		Title:      "x",
		Severity:   types.SeverityCritical,
		ImpactType: types.ImpactAvailability,
		Entities:   []types.EntityRef{broken},
	})
	require.Error(t, err)
	assert.NotContains(t, mirror.seen, broken)
}

type recordingMirror struct {
	seen map[types.EntityRef]types.OperationalStatus
}

func (m *recordingMirror) SetEntityStatus(_ context.Context, ref types.EntityRef, status types.OperationalStatus) error {
	m.seen[ref] = status
	return nil
}
