package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ContestStatus string

const (
	ContestStatusScheduled ContestStatus = "SCHEDULED"
	ContestStatusLocked    ContestStatus = "LOCKED"
	ContestStatusLive      ContestStatus = "LIVE"
	ContestStatusComplete  ContestStatus = "COMPLETE"
	ContestStatusCancelled ContestStatus = "CANCELLED"
	ContestStatusError     ContestStatus = "ERROR"
)

// TerminalStatuses are never overwritten once written.
var TerminalStatuses = []ContestStatus{
	ContestStatusComplete,
	ContestStatusCancelled,
}

// IsTerminal reports whether s is COMPLETE or CANCELLED.
func (s ContestStatus) IsTerminal() bool {
	return s == ContestStatusComplete || s == ContestStatusCancelled
}

// Valid reports whether s is one of the known lifecycle states.
func (s ContestStatus) Valid() bool {
	switch s {
	case ContestStatusScheduled, ContestStatusLocked, ContestStatusLive,
		ContestStatusComplete, ContestStatusCancelled, ContestStatusError:
		return true
	}
	return false
}

type TriggeredBy string

const (
	TriggeredByTimeReached       TriggeredBy = "TIME_REACHED"
	TriggeredByProviderCancelled TriggeredBy = "PROVIDER_CANCELLED"
	TriggeredByAdmin             TriggeredBy = "ADMIN"
	TriggeredBySettlement        TriggeredBy = "SETTLEMENT"
)

// ContestInstance is one playable contest. Its status column is written only
// by the lifecycle package.
type ContestInstance struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"template_id"`
	EntryFee            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"entry_fee"`
	PayoutShape         string          `gorm:"size:50;not null" json:"payout_shape"`
	PayoutTable         PayoutTable     `gorm:"type:text;not null" json:"payout_table"`
	Status              ContestStatus   `gorm:"size:20;not null;default:SCHEDULED;index" json:"status"`
	LockTime            *time.Time      `gorm:"index" json:"lock_time"`
	TournamentStartTime *time.Time      `gorm:"index" json:"tournament_start_time"`
	TournamentEndTime   *time.Time      `gorm:"index" json:"tournament_end_time"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (ContestInstance) TableName() string {
	return "contest_instances"
}

func (c *ContestInstance) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TransitionLogEntry is the append-only audit trail of status changes. The
// unique index makes a second (from, to) entry for the same contest fail.
type TransitionLogEntry struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	ContestInstanceID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:ux_transition_edge,priority:1" json:"contest_instance_id"`
	FromStatus        ContestStatus `gorm:"size:20;not null;uniqueIndex:ux_transition_edge,priority:2" json:"from_status"`
	ToStatus          ContestStatus `gorm:"size:20;not null;uniqueIndex:ux_transition_edge,priority:3" json:"to_status"`
	TriggeredBy       TriggeredBy   `gorm:"size:30;not null" json:"triggered_by"`
	OccurredAt        time.Time     `gorm:"not null;index" json:"occurred_at"`
}

func (TransitionLogEntry) TableName() string {
	return "contest_transition_logs"
}

// ContestStatusView is what the presentation layer reads.
type ContestStatusView struct {
	ID                  uuid.UUID     `json:"id"`
	Status              ContestStatus `json:"status"`
	LockTime            *time.Time    `json:"lock_time"`
	TournamentStartTime *time.Time    `json:"tournament_start_time"`
	TournamentEndTime   *time.Time    `json:"tournament_end_time"`
}
