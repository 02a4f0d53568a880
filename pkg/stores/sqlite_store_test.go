package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldd91/integrated-manager-for-lustre/pkg/alerts"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/engine"
	"github.com/ldd91/integrated-manager-for-lustre/pkg/events"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "manager.db")})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestObjectStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := engine.ObjectRef{Kind: "host", ID: "h1"}

	_, _, err := store.LoadObjectState(ctx, ref)
	assert.Error(t, err, "loading an unknown object must fail")

	first := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.SaveObjectState(ctx, ref, "unconfigured", first))

	state, modifiedAt, err := store.LoadObjectState(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "unconfigured", state)
	assert.True(t, modifiedAt.Equal(first), "modifiedAt = %v, want %v", modifiedAt, first)

	// A second save updates in place.
	second := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveObjectState(ctx, ref, "managed", second))
	state, modifiedAt, err = store.LoadObjectState(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "managed", state)
	assert.True(t, modifiedAt.Equal(second))
}

func TestJobRecordLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &engine.JobRecord{
		ID:          uuid.New(),
		Description: "Setup host oss1",
		Status:      engine.JobStatusPending,
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveJob(ctx, rec))

	// Status changes overwrite the same row.
	started := time.Now().UTC().Truncate(time.Second)
	rec.Status = engine.JobStatusRunning
	rec.StartedAt = &started
	require.NoError(t, store.SaveJob(ctx, rec))

	completed := started.Add(time.Minute)
	rec.Status = engine.JobStatusFailed
	rec.Failure = "step failed"
	rec.CompletedAt = &completed
	require.NoError(t, store.SaveJob(ctx, rec))

	got, err := store.GetJob(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, engine.JobStatusFailed, got.Status)
	assert.Equal(t, "step failed", got.Failure)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetJob(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestListJobsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveJob(ctx, &engine.JobRecord{
			ID:          uuid.New(),
			Description: "job",
			Status:      engine.JobStatusComplete,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := store.ListJobs(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].SubmittedAt.After(recs[1].SubmittedAt))

	rest, err := store.ListJobs(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestActiveAlertLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	item := engine.ObjectRef{Kind: "corosync", ID: "h1"}

	got, err := store.ActiveAlert(ctx, "corosync_stopped", item)
	require.NoError(t, err)
	assert.Nil(t, got, "no alert raised yet")

	alert := &alerts.Alert{
		ID:        uuid.New(),
		Type:      "corosync_stopped",
		Item:      item,
		ItemLabel: "oss1.example.com",
		Severity:  events.SeverityError,
		Message:   "Corosync stopped on oss1.example.com",
		Active:    true,
		BeganAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveAlert(ctx, alert))

	got, err = store.ActiveAlert(ctx, "corosync_stopped", item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alert.ID, got.ID)
	assert.Equal(t, item, got.Item)

	// Another item stays unaffected.
	got, err = store.ActiveAlert(ctx, "corosync_stopped", engine.ObjectRef{Kind: "corosync", ID: "h2"})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Clearing hides it from the active lookup but not from history.
	ended := time.Now().UTC().Truncate(time.Second)
	alert.Active = false
	alert.EndedAt = &ended
	require.NoError(t, store.SaveAlert(ctx, alert))

	got, err = store.ActiveAlert(ctx, "corosync_stopped", item)
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := store.ListAlerts(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	require.NotNil(t, all[0].EndedAt)

	active, err := store.ListAlerts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEventAppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	learn := &events.Event{
		ID:        uuid.New(),
		Kind:      events.KindLearn,
		Severity:  events.SeverityInfo,
		CreatedAt: time.Now().UTC().Truncate(time.Second).Add(-time.Minute),
		Payload: &events.LearnPayload{
			Item:      engine.ObjectRef{Kind: "target", ID: "t1"},
			ItemLabel: "fs-MDT0000",
		},
	}
	alertEv := &events.Event{
		ID:        uuid.New(),
		Kind:      events.KindAlert,
		Severity:  events.SeverityError,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Payload: &events.AlertPayload{
			AlertType: "corosync_stopped",
			Item:      engine.ObjectRef{Kind: "corosync", ID: "h1"},
			ItemLabel: "oss1",
			Active:    true,
			Text:      "Corosync stopped on oss1",
		},
	}
	require.NoError(t, store.AppendEvent(ctx, learn))
	require.NoError(t, store.AppendEvent(ctx, alertEv))

	all, err := store.ListEvents(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, alertEv.ID, all[0].ID, "newest first")

	// The payload rehydrates to its concrete variant.
	payload, ok := all[0].Payload.(*events.AlertPayload)
	require.True(t, ok)
	assert.Equal(t, "corosync_stopped", payload.AlertType)

	onlyLearn, err := store.ListEvents(ctx, events.KindLearn, 10)
	require.NoError(t, err)
	require.Len(t, onlyLearn, 1)
	assert.Equal(t, learn.ID, onlyLearn[0].ID)
}

func TestSetEventDismissed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := &events.Event{
		ID:        uuid.New(),
		Kind:      events.KindSyslog,
		Severity:  events.SeverityWarning,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Payload:   &events.SyslogPayload{Host: "oss1", Facility: "kern", Line: "LustreError"},
	}
	require.NoError(t, store.AppendEvent(ctx, ev))

	require.NoError(t, store.SetEventDismissed(ctx, ev.ID, true))
	got, err := store.ListEvents(ctx, events.KindSyslog, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Dismissed)

	assert.Error(t, store.SetEventDismissed(ctx, uuid.New(), true), "unknown event id")
}

func TestInitHonorsConnectionLimits(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "manager.db"),
		MaxOpenConns:    3,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	assert.Equal(t, 3, store.db.Stats().MaxOpenConnections)

	defaulted, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "manager.db")})
	require.NoError(t, err)
	assert.Equal(t, 25, defaulted.cfg.MaxOpenConns)
	assert.Equal(t, 5, defaulted.cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, defaulted.cfg.ConnMaxLifetime)
}
