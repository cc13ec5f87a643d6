// Package testutil provides SQLite-backed stores and fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"contest-lifecycle/internal/database"
	"contest-lifecycle/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated SQLite database in a per-test temp dir. The pool is
// capped at one connection, so concurrent callers queue on the pool the way
// they would queue on row locks in Postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "contests.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Discard,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

// Base is a fixed reference instant for tests.
var Base = time.Date(2026, time.January, 10, 18, 0, 0, 0, time.UTC)

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func DecPtr(s string) *decimal.Decimal {
	d := Dec(s)
	return &d
}

// TopThreeTable pays 70/20/10 percent of the pool to ranks 1, 2 and 3.
func TopThreeTable() models.PayoutTable {
	return models.PayoutTable{
		{MinRank: 1, MaxRank: 1, Percentage: DecPtr("70")},
		{MinRank: 2, MaxRank: 2, Percentage: DecPtr("20")},
		{MinRank: 3, MaxRank: 3, Percentage: DecPtr("10")},
	}
}

// CreateTemplate inserts an ACTIVE template allowing "top3" payouts.
func CreateTemplate(t testing.TB, db *gorm.DB) *models.ContestTemplate {
	t.Helper()

	tmpl := &models.ContestTemplate{
		Name:                "Wildcard Weekend",
		Slug:                "wildcard-weekend",
		LockStrategy:        models.LockStrategyFirstEventStart,
		MinEntryFee:         Dec("0"),
		MaxEntryFee:         Dec("500"),
		AllowedPayoutShapes: models.StringList{"top3", "winner_take_all"},
		Status:              models.TemplateStatusActive,
	}
	if err := db.Create(tmpl).Error; err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return tmpl
}

// Times are the lock, start and end instants of a contest; nil leaves a
// column NULL.
type Times struct {
	Lock, Start, End *time.Time
}

// Schedule returns Times at Base+lock, Base+start and Base+end.
func Schedule(lock, start, end time.Duration) Times {
	l, s, e := Base.Add(lock), Base.Add(start), Base.Add(end)
	return Times{Lock: &l, Start: &s, End: &e}
}

// CreateInstance inserts a contest of tmpl in the given status.
func CreateInstance(
	t testing.TB,
	db *gorm.DB,
	tmpl *models.ContestTemplate,
	status models.ContestStatus,
	times Times,
) *models.ContestInstance {
	t.Helper()

	inst := &models.ContestInstance{
		ID:                  uuid.New(),
		TemplateID:          tmpl.ID,
		EntryFee:            Dec("50"),
		PayoutShape:         "top3",
		PayoutTable:         TopThreeTable(),
		Status:              status,
		LockTime:            times.Lock,
		TournamentStartTime: times.Start,
		TournamentEndTime:   times.End,
	}
	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("failed to create contest instance: %v", err)
	}
	return inst
}

// Reload re-reads an instance.
func Reload(t testing.TB, db *gorm.DB, id uuid.UUID) *models.ContestInstance {
	t.Helper()

	var inst models.ContestInstance
	if err := db.Where("id = ?", id).First(&inst).Error; err != nil {
		t.Fatalf("failed to reload contest %s: %v", id, err)
	}
	return &inst
}

// Transitions returns the transition log of a contest in insertion order.
func Transitions(t testing.TB, db *gorm.DB, id uuid.UUID) []models.TransitionLogEntry {
	t.Helper()

	var entries []models.TransitionLogEntry
	if err := db.Where("contest_instance_id = ?", id).Order("id ASC").Find(&entries).Error; err != nil {
		t.Fatalf("failed to load transitions for %s: %v", id, err)
	}
	return entries
}

// Standings builds entries from alternating entrant id / score pairs.
func Standings(pairs ...string) models.StandingsEntries {
	entries := make(models.StandingsEntries, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		entries = append(entries, models.StandingsEntry{EntrantID: pairs[i], Score: Dec(pairs[i+1])})
	}
	return entries
}
