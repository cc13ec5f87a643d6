package services

import (
	"context"
	"testing"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/settlement"
	"contest-lifecycle/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	repo      *repository.Repository
	admin     *AdminService
	contests  *ContestService
	templates *TemplateService
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	repo := repository.NewRepository(db)
	snapshots := settlement.NewSnapshotStore(db)
	machine := lifecycle.NewMachine(db, settlement.NewEngine(), snapshots)
	return &fixture{
		db:        db,
		repo:      repo,
		admin:     NewAdminService(machine, repo),
		contests:  NewContestService(repo, machine, snapshots),
		templates: NewTemplateService(repo),
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestAdminForceLockIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusScheduled, testutil.Schedule(time.Hour, 2*time.Hour, 3*time.Hour))

	res, err := f.admin.ForceLock(ctx, "ops@example.com", inst.ID, testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())

	again, err := f.admin.ForceLock(ctx, "ops@example.com", inst.ID, testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Count())

	logs, err := f.admin.GetAdminLogs(ctx, inst.ID.String(), 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, "ops@example.com", l.Operator)
		assert.Equal(t, ActionForceLock, l.Action)
	}

	entries := testutil.Transitions(t, f.db, inst.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TriggeredByAdmin, entries[0].TriggeredBy)
}

func TestAdminErrorRecoveryAndSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLocked, testutil.Schedule(-time.Hour, time.Hour, 2*time.Hour))

	_, err := f.admin.ForceLive(ctx, "ops", inst.ID, testutil.Base)
	require.NoError(t, err)

	_, err = f.admin.MarkError(ctx, "ops", inst.ID, "scoring feed stalled", testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, models.ContestStatusError, testutil.Reload(t, f.db, inst.ID).Status)

	_, err = f.admin.ResolveError(ctx, "ops", inst.ID, models.ContestStatusLive, testutil.Base)
	assert.True(t, lifecycle.IsValidation(err))

	_, err = f.admin.ResolveError(ctx, "ops", inst.ID, models.ContestStatusCancelled, testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, models.ContestStatusCancelled, testutil.Reload(t, f.db, inst.ID).Status)

	logs, err := f.admin.GetAdminLogs(ctx, inst.ID.String(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, ActionResolveError, logs[0].Action)
	assert.Contains(t, logs[1].Details, "error")
	assert.Equal(t, "scoring feed stalled", logs[2].Details["reason"])

	live := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-2*time.Hour, -time.Hour, time.Hour))
	_, _, err = f.contests.snapshots.Ingest(ctx, live.ID, testutil.Standings("a", "2", "b", "1"), testutil.Base)
	require.NoError(t, err)

	res, err := f.admin.Settle(ctx, "ops", live.ID, testutil.Base)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.Equal(t, models.TriggeredBySettlement, res.Transitions[0].TriggeredBy)

	records, err := f.contests.GetSettlements(ctx, live.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestErrorRecoveryAcceptsLateStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-3*time.Hour, -2*time.Hour, -time.Hour))

	_, err := f.admin.MarkError(ctx, "ops", inst.ID, "scoring feed stalled", testutil.Base)
	require.NoError(t, err)

	_, err = f.admin.ResolveError(ctx, "ops", inst.ID, models.ContestStatusComplete, testutil.Base)
	assert.ErrorIs(t, err, settlement.ErrNoSnapshot)
	assert.Equal(t, models.ContestStatusError, testutil.Reload(t, f.db, inst.ID).Status)

	_, created, err := f.contests.IngestStandings(ctx, inst.ID, testutil.Standings("a", "5", "b", "4", "c", "3"), testutil.Base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, created)

	res, err := f.admin.ResolveError(ctx, "ops", inst.ID, models.ContestStatusComplete, testutil.Base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.Equal(t, models.ContestStatusComplete, testutil.Reload(t, f.db, inst.ID).Status)

	records, err := f.contests.GetSettlements(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, _, err = f.contests.IngestStandings(ctx, inst.ID, testutil.Standings("a", "1"), testutil.Base.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrStandingsRejected)
}

func TestSettlementUsesRevertedStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-3*time.Hour, -2*time.Hour, -time.Hour))

	original := testutil.Standings("a", "3", "b", "2")
	_, _, err := f.contests.IngestStandings(ctx, inst.ID, original, testutil.Base)
	require.NoError(t, err)
	_, _, err = f.contests.IngestStandings(ctx, inst.ID, testutil.Standings("a", "2", "b", "3"), testutil.Base.Add(time.Minute))
	require.NoError(t, err)
	reverted, created, err := f.contests.IngestStandings(ctx, inst.ID, original, testutil.Base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, created)

	current, err := f.contests.GetStandings(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, reverted.Hash, current.Hash)

	_, err = f.admin.Settle(ctx, "ops", inst.ID, testutil.Base.Add(3*time.Minute))
	require.NoError(t, err)

	records, err := f.contests.GetSettlements(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, reverted.Hash, r.SnapshotHash)
	}
	assert.Equal(t, "a", records[0].EntrantID)
}

func TestAdminCancelAndCancelTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	a := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusScheduled, testutil.Times{})
	b := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Times{})

	res, err := f.admin.Cancel(ctx, "ops", a.ID, testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())

	res, err = f.admin.CancelTemplate(ctx, "ops", tmpl.ID, testutil.Base)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count())
	assert.Equal(t, b.ID, res.Transitions[0].ContestInstanceID)

	logs, err := f.admin.GetAdminLogs(ctx, tmpl.ID.String(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "TEMPLATE", logs[0].ResourceType)
}

func TestIngestStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	entries := testutil.Standings("a", "3", "b", "2")

	running := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-2*time.Hour, -time.Hour, time.Hour))
	_, _, err := f.contests.IngestStandings(ctx, running.ID, entries, testutil.Base)
	assert.ErrorIs(t, err, ErrStandingsRejected)

	locked := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLocked, testutil.Schedule(-2*time.Hour, -time.Hour, -time.Minute))
	_, _, err = f.contests.IngestStandings(ctx, locked.ID, entries, testutil.Base)
	assert.ErrorIs(t, err, ErrStandingsRejected)

	ended := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-2*time.Hour, -time.Hour, 0))
	snap, created, err := f.contests.IngestStandings(ctx, ended.ID, entries, testutil.Base)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, snap.Hash, 64)

	again, created, err := f.contests.IngestStandings(ctx, ended.ID, testutil.Standings("b", "2", "a", "3"), testutil.Base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, snap.Hash, again.Hash)

	_, _, err = f.contests.IngestStandings(ctx, ended.ID, testutil.Standings("a", "1", "a", "2"), testutil.Base)
	assert.True(t, lifecycle.IsValidation(err))

	_, _, err = f.contests.IngestStandings(ctx, uuid.New(), entries, testutil.Base)
	assert.ErrorIs(t, err, lifecycle.ErrContestNotFound)

	erroredEarly := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusError, testutil.Schedule(-2*time.Hour, -time.Hour, time.Hour))
	_, _, err = f.contests.IngestStandings(ctx, erroredEarly.ID, entries, testutil.Base)
	assert.ErrorIs(t, err, ErrStandingsRejected)

	cancelled := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusCancelled, testutil.Schedule(-2*time.Hour, -time.Hour, -time.Minute))
	_, _, err = f.contests.IngestStandings(ctx, cancelled.ID, entries, testutil.Base)
	assert.ErrorIs(t, err, ErrStandingsRejected)
}

func TestGetStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusLive, testutil.Schedule(-2*time.Hour, -time.Hour, 0))

	_, err := f.contests.GetStandings(ctx, inst.ID)
	assert.ErrorIs(t, err, settlement.ErrNoSnapshot)

	snap, _, err := f.contests.IngestStandings(ctx, inst.ID, testutil.Standings("a", "1"), testutil.Base)
	require.NoError(t, err)
	got, err := f.contests.GetStandings(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, got.Hash)

	_, err = f.contests.GetStandings(ctx, uuid.New())
	assert.ErrorIs(t, err, lifecycle.ErrContestNotFound)
}

func TestContestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusScheduled, testutil.Schedule(0, time.Hour, 2*time.Hour))

	view, err := f.contests.GetStatus(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContestStatusScheduled, view.Status)
	assert.True(t, view.LockTime.Equal(testutil.Base))

	_, err = f.contests.GetStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, lifecycle.ErrContestNotFound)

	_, err = f.contests.ListInstances(ctx, repository.InstanceFilter{Status: "DONE"})
	assert.True(t, lifecycle.IsValidation(err))

	res, err := f.contests.TemplateCancelled(ctx, tmpl.ID, testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count())

	log, err := f.contests.GetTransitions(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.TriggeredByProviderCancelled, log[0].TriggeredBy)
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl, err := f.templates.CreateTemplate(ctx, CreateTemplateInput{
		Name:                "  NFL Week 1: Sunday Main  ",
		LockStrategy:        models.LockStrategyFirstEventStart,
		MinEntryFee:         testutil.Dec("1"),
		MaxEntryFee:         testutil.Dec("100"),
		AllowedPayoutShapes: []string{"top3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "nfl-week-1-sunday-main", tmpl.Slug)
	assert.Equal(t, models.TemplateStatusActive, tmpl.Status)

	_, err = f.templates.CreateTemplate(ctx, CreateTemplateInput{
		Name:                "Bad",
		LockStrategy:        "WHENEVER",
		AllowedPayoutShapes: []string{"top3"},
	})
	assert.True(t, lifecycle.IsValidation(err))

	_, err = f.templates.CreateTemplate(ctx, CreateTemplateInput{
		Name:                "Bad",
		LockStrategy:        models.LockStrategyFixedTimestamp,
		MinEntryFee:         testutil.Dec("10"),
		MaxEntryFee:         testutil.Dec("5"),
		AllowedPayoutShapes: []string{"top3"},
	})
	assert.True(t, lifecycle.IsValidation(err))
}

func TestUpdateTemplateMetadataBlockedByRunningContest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)
	inst := testutil.CreateInstance(t, f.db, tmpl, models.ContestStatusScheduled, testutil.Times{})

	_, err := f.templates.UpdateTemplateMetadata(ctx, tmpl.ID, "New Name", "", testutil.Base)
	assert.ErrorIs(t, err, ErrTemplateBusy)

	_, err = f.admin.Cancel(ctx, "ops", inst.ID, testutil.Base)
	require.NoError(t, err)

	updated, err := f.templates.UpdateTemplateMetadata(ctx, tmpl.ID, "New Name", "after cancel", testutil.Base)
	require.NoError(t, err)
	assert.Equal(t, "new-name", updated.Slug)
	assert.Equal(t, "after cancel", updated.Description)

	_, err = f.templates.UpdateTemplateMetadata(ctx, uuid.New(), "x", "", testutil.Base)
	assert.ErrorIs(t, err, lifecycle.ErrTemplateNotFound)
}

func TestCreateInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := testutil.CreateTemplate(t, f.db)

	start := testutil.Base.Add(time.Hour)
	end := testutil.Base.Add(4 * time.Hour)
	valid := CreateInstanceInput{
		TemplateID:          tmpl.ID,
		EntryFee:            testutil.Dec("25"),
		PayoutShape:         "top3",
		PayoutTable:         testutil.TopThreeTable(),
		TournamentStartTime: &start,
		TournamentEndTime:   &end,
	}

	inst, err := f.templates.CreateInstance(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, models.ContestStatusScheduled, inst.Status)
	require.NotNil(t, inst.LockTime)
	assert.True(t, inst.LockTime.Equal(start), "FIRST_EVENT_START locks at tournament start")

	tests := []struct {
		name   string
		mutate func(in *CreateInstanceInput)
	}{
		{"fee above range", func(in *CreateInstanceInput) { in.EntryFee = testutil.Dec("501") }},
		{"shape not allowed", func(in *CreateInstanceInput) { in.PayoutShape = "fifty_fifty" }},
		{"malformed table", func(in *CreateInstanceInput) { in.PayoutTable = nil }},
		{"end before start", func(in *CreateInstanceInput) { in.TournamentEndTime = ptr(start.Add(-time.Minute)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.templates.CreateInstance(ctx, in)
			assert.True(t, lifecycle.IsValidation(err), "got %v", err)
		})
	}

	_, err = f.admin.CancelTemplate(ctx, "ops", tmpl.ID, testutil.Base)
	require.NoError(t, err)
	_, err = f.templates.CreateInstance(ctx, valid)
	assert.ErrorIs(t, err, ErrTemplateCancelled)
}

func TestUpdateInstanceTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl, err := f.templates.CreateTemplate(ctx, CreateTemplateInput{
		Name:                "Fixed Lock",
		LockStrategy:        models.LockStrategyFixedTimestamp,
		MaxEntryFee:         testutil.Dec("100"),
		AllowedPayoutShapes: []string{"top3"},
	})
	require.NoError(t, err)

	inst, err := f.templates.CreateInstance(ctx, CreateInstanceInput{
		TemplateID:  tmpl.ID,
		EntryFee:    testutil.Dec("10"),
		PayoutShape: "top3",
		PayoutTable: testutil.TopThreeTable(),
		LockTime:    ptr(testutil.Base),
	})
	require.NoError(t, err)

	_, err = f.templates.UpdateInstanceTimes(ctx, inst.ID, repository.InstanceTimes{}, testutil.Base)
	assert.True(t, lifecycle.IsValidation(err))

	lock := testutil.Base.Add(30 * time.Minute)
	updated, err := f.templates.UpdateInstanceTimes(ctx, inst.ID, repository.InstanceTimes{
		LockTime:            &lock,
		TournamentStartTime: ptr(testutil.Base.Add(time.Hour)),
		TournamentEndTime:   ptr(testutil.Base.Add(2 * time.Hour)),
	}, testutil.Base)
	require.NoError(t, err)
	assert.True(t, updated.LockTime.Equal(lock))

	_, err = f.admin.ForceLock(ctx, "ops", inst.ID, testutil.Base)
	require.NoError(t, err)

	_, err = f.templates.UpdateInstanceTimes(ctx, inst.ID, repository.InstanceTimes{LockTime: &lock}, testutil.Base)
	assert.ErrorIs(t, err, ErrNotScheduled)
}
