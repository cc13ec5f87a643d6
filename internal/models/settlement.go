package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementRecord is the append-only payout of one entrant in one contest
type SettlementRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ContestInstanceID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:ux_settlement_entrant,priority:1" json:"contest_instance_id"`
	EntrantID         string          `gorm:"size:128;not null;uniqueIndex:ux_settlement_entrant,priority:2" json:"entrant_id"`
	Rank              int             `gorm:"column:final_rank;not null" json:"rank"`
	Score             decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"score"`
	PayoutAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"payout_amount"`
	SnapshotHash      string          `gorm:"size:64;not null;index" json:"snapshot_hash"`
	ComputedAt        time.Time       `gorm:"not null" json:"computed_at"`
}

func (SettlementRecord) TableName() string {
	return "settlement_records"
}
