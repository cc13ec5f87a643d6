package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// domainStandings separates standings hashes from any other hash the
// platform computes over similar bytes. The version suffix allows the
// canonical form to change without colliding with old snapshots.
const domainStandings = "contest/standings/v1"

type canonicalEntry struct {
	EntrantID string `json:"entrant_id"`
	Score     string `json:"score"`
}

type canonicalStandings struct {
	ContestInstanceID string           `json:"contest_instance_id"`
	Entries           []canonicalEntry `json:"entries"`
}

// NormalizeEntries returns a copy sorted by entrant id after rejecting
// empty or duplicate entrant ids.
func NormalizeEntries(entries models.StandingsEntries) (models.StandingsEntries, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	out := make(models.StandingsEntries, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].EntrantID < out[j].EntrantID })
	return out, nil
}

// SnapshotHash computes the content address of a contest's standings:
// SHA256(domain || 0x00 || canonical JSON).
func SnapshotHash(contestID uuid.UUID, entries models.StandingsEntries) (string, error) {
	normalized, err := NormalizeEntries(entries)
	if err != nil {
		return "", err
	}

	doc := canonicalStandings{
		ContestInstanceID: contestID.String(),
		Entries:           make([]canonicalEntry, len(normalized)),
	}
	for i, e := range normalized {
		doc.Entries[i] = canonicalEntry{EntrantID: e.EntrantID, Score: e.Score.String()}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal standings: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domainStandings))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SnapshotStore persists ingested standings and hands the latest one to the
// LIVE->COMPLETE transition.
type SnapshotStore struct {
	db *gorm.DB
}

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Ingest stores entries for a contest and records the delivery. Identical
// content maps to the same hash, so the snapshot row is written once and
// later deliveries return it with created=false. Every call still appends an
// ingestion, which makes the delivered standings the ones Capture returns.
func (s *SnapshotStore) Ingest(
	ctx context.Context,
	contestID uuid.UUID,
	entries models.StandingsEntries,
	now time.Time,
) (*models.StandingsSnapshot, bool, error) {
	normalized, err := NormalizeEntries(entries)
	if err != nil {
		return nil, false, err
	}
	hash, err := SnapshotHash(contestID, normalized)
	if err != nil {
		return nil, false, err
	}

	snap := &models.StandingsSnapshot{
		Hash:              hash,
		ContestInstanceID: contestID,
		Entries:           normalized,
		EntrantCount:      len(normalized),
		CapturedAt:        now,
	}

	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(snap)
		if res.Error != nil {
			return fmt.Errorf("store standings snapshot: %w", res.Error)
		}
		created = res.RowsAffected == 1

		ingestion := &models.StandingsIngestion{
			ContestInstanceID: contestID,
			SnapshotHash:      hash,
			IngestedAt:        now,
		}
		if err := tx.Create(ingestion).Error; err != nil {
			return fmt.Errorf("record standings ingestion: %w", err)
		}

		if !created {
			var existing models.StandingsSnapshot
			if err := tx.Where("hash = ?", hash).First(&existing).Error; err != nil {
				return fmt.Errorf("load standings snapshot %s: %w", hash, err)
			}
			snap = &existing
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return snap, created, nil
}

// Capture returns the snapshot named by the instance's latest ingestion,
// verifying that its stored content still hashes to its address.
func (s *SnapshotStore) Capture(
	ctx context.Context,
	tx *gorm.DB,
	instance *models.ContestInstance,
) (*models.StandingsSnapshot, error) {
	var latest models.StandingsIngestion
	err := tx.WithContext(ctx).
		Where("contest_instance_id = ?", instance.ID).
		Order("ingested_at DESC").
		Order("id DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, instance.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load standings for %s: %w", instance.ID, err)
	}

	var snap models.StandingsSnapshot
	err = tx.WithContext(ctx).Where("hash = ?", latest.SnapshotHash).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: ingestion %d names missing snapshot %s", ErrMalformedSnapshot, latest.ID, latest.SnapshotHash)
	}
	if err != nil {
		return nil, fmt.Errorf("load standings snapshot %s: %w", latest.SnapshotHash, err)
	}
	if snap.ContestInstanceID != instance.ID {
		return nil, fmt.Errorf("%w: snapshot %s belongs to contest %s", ErrMalformedSnapshot, snap.Hash, snap.ContestInstanceID)
	}

	if err := VerifySnapshot(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Latest returns the snapshot LIVE->COMPLETE would capture right now.
func (s *SnapshotStore) Latest(ctx context.Context, instance *models.ContestInstance) (*models.StandingsSnapshot, error) {
	return s.Capture(ctx, s.db, instance)
}

// VerifySnapshot recomputes the content hash and compares it to the stored one.
func VerifySnapshot(snap *models.StandingsSnapshot) error {
	hash, err := SnapshotHash(snap.ContestInstanceID, snap.Entries)
	if err != nil {
		return err
	}
	if hash != snap.Hash {
		return fmt.Errorf("%w: content hash %s does not match address %s", ErrMalformedSnapshot, hash, snap.Hash)
	}
	if snap.EntrantCount != len(snap.Entries) {
		return fmt.Errorf("%w: entrant count %d, entries %d", ErrMalformedSnapshot, snap.EntrantCount, len(snap.Entries))
	}
	return nil
}
