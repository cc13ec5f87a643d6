package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Engine computes and persists settlement records. It never touches contest
// status; the lifecycle package calls it inside the LIVE->COMPLETE
// transaction so a failure here rolls the status flip back.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Settle writes one SettlementRecord per entrant in snapshot. If records
// already exist for the contest they are returned unchanged, so
// Settle(Settle(x)) == Settle(x).
func (e *Engine) Settle(
	ctx context.Context,
	tx *gorm.DB,
	instance *models.ContestInstance,
	snapshot *models.StandingsSnapshot,
	now time.Time,
) ([]models.SettlementRecord, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, instance.ID)
	}
	if snapshot.ContestInstanceID != instance.ID {
		return nil, fmt.Errorf("%w: snapshot %s belongs to contest %s, not %s",
			ErrMalformedSnapshot, snapshot.Hash, snapshot.ContestInstanceID, instance.ID)
	}

	tx = tx.WithContext(ctx)

	// Serialize concurrent settlements of the same contest.
	var locked models.ContestInstance
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", instance.ID).
		First(&locked).Error; err != nil {
		return nil, fmt.Errorf("lock contest %s for settlement: %w", instance.ID, err)
	}

	existing, err := Records(ctx, tx, instance.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		log.Printf("[Settlement] Contest %s already settled (%d records), skipping", instance.ID, len(existing))
		return existing, nil
	}

	if err := VerifySnapshot(snapshot); err != nil {
		return nil, err
	}

	payouts, err := ComputePayouts(locked.EntryFee, locked.PayoutTable, snapshot.Entries)
	if err != nil {
		return nil, fmt.Errorf("compute payouts for %s: %w", instance.ID, err)
	}

	records := make([]models.SettlementRecord, len(payouts))
	for i, p := range payouts {
		records[i] = models.SettlementRecord{
			ContestInstanceID: instance.ID,
			EntrantID:         p.EntrantID,
			Rank:              p.Rank,
			Score:             p.Score,
			PayoutAmount:      p.Amount,
			SnapshotHash:      snapshot.Hash,
			ComputedAt:        now,
		}
	}

	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error; err != nil {
		return nil, fmt.Errorf("insert settlement records for %s: %w", instance.ID, err)
	}

	stored, err := Records(ctx, tx, instance.ID)
	if err != nil {
		return nil, err
	}
	if len(stored) != snapshot.EntrantCount {
		return nil, fmt.Errorf("contest %s: %d settlement records for %d entrants",
			instance.ID, len(stored), snapshot.EntrantCount)
	}

	log.Printf("[Settlement] Contest %s settled: %d entrants, snapshot %s", instance.ID, len(stored), snapshot.Hash)
	return stored, nil
}

// Records returns the settlement records of a contest ordered by rank, then
// entrant id.
func Records(ctx context.Context, db *gorm.DB, contestID uuid.UUID) ([]models.SettlementRecord, error) {
	var records []models.SettlementRecord
	err := db.WithContext(ctx).
		Where("contest_instance_id = ?", contestID).
		Order("final_rank ASC").
		Order("entrant_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load settlement records for %s: %w", contestID, err)
	}
	return records, nil
}
