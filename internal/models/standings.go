package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StandingsEntry is one entrant's final score as reported by scoring
type StandingsEntry struct {
	EntrantID string          `json:"entrant_id"`
	Score     decimal.Decimal `json:"score"`
}

// StandingsEntries is stored as a JSON array, sorted by entrant id.
type StandingsEntries []StandingsEntry

func (e StandingsEntries) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]StandingsEntry(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (e *StandingsEntries) Scan(value interface{}) error {
	if value == nil {
		*e = nil
		return nil
	}
	return json.Unmarshal(jsonBytes(value), (*[]StandingsEntry)(e))
}

// StandingsSnapshot is an immutable, content-addressed capture of final
// standings for one contest.
type StandingsSnapshot struct {
	Hash              string           `gorm:"size:64;primaryKey" json:"hash"`
	ContestInstanceID uuid.UUID        `gorm:"type:uuid;not null;index" json:"contest_instance_id"`
	Entries           StandingsEntries `gorm:"type:text;not null" json:"entries"`
	EntrantCount      int              `gorm:"not null" json:"entrant_count"`
	CapturedAt        time.Time        `gorm:"not null;index" json:"captured_at"`
}

func (StandingsSnapshot) TableName() string {
	return "standings_snapshots"
}

// StandingsIngestion records one delivery of standings. Snapshots are stored
// once per content hash; the latest ingestion decides which one settles.
type StandingsIngestion struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ContestInstanceID uuid.UUID `gorm:"type:uuid;not null;index:idx_standings_ingestions_contest,priority:1" json:"contest_instance_id"`
	SnapshotHash      string    `gorm:"size:64;not null;index" json:"snapshot_hash"`
	IngestedAt        time.Time `gorm:"not null;index:idx_standings_ingestions_contest,priority:2" json:"ingested_at"`
}

func (StandingsIngestion) TableName() string {
	return "standings_ingestions"
}
