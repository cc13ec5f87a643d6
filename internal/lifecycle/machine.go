// Package lifecycle owns every write to a contest instance's status. Each
// edge of the lifecycle graph is a primitive whose precondition is part of
// the mutating statement, so a retried or concurrent call matches zero rows
// and returns an empty Result instead of writing twice.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settler computes and persists payouts inside the caller's transaction.
type Settler interface {
	Settle(ctx context.Context, tx *gorm.DB, instance *models.ContestInstance,
		snapshot *models.StandingsSnapshot, now time.Time) ([]models.SettlementRecord, error)
}

// StandingsSource captures the final standings used to settle a contest.
type StandingsSource interface {
	Capture(ctx context.Context, tx *gorm.DB, instance *models.ContestInstance) (*models.StandingsSnapshot, error)
}

// Machine applies lifecycle transitions against the relational store.
type Machine struct {
	db        *gorm.DB
	settler   Settler
	standings StandingsSource
}

func NewMachine(db *gorm.DB, settler Settler, standings StandingsSource) *Machine {
	return &Machine{
		db:        db,
		settler:   settler,
		standings: standings,
	}
}

// Transition is one committed status change
type Transition struct {
	ContestInstanceID uuid.UUID            `json:"contest_instance_id"`
	From              models.ContestStatus `json:"from"`
	To                models.ContestStatus `json:"to"`
	TriggeredBy       models.TriggeredBy   `json:"triggered_by"`
	OccurredAt        time.Time            `json:"occurred_at"`
	Settlements       int                  `json:"settlements,omitempty"`
}

// Skip explains why a single-instance call changed nothing.
type Skip struct {
	ContestInstanceID uuid.UUID            `json:"contest_instance_id"`
	Status            models.ContestStatus `json:"status"`
	Reason            string               `json:"reason"`
}

// Result of a primitive. An empty Result is a precondition mismatch, not a
// failure.
type Result struct {
	Transitions []Transition `json:"transitions"`
	Skipped     []Skip       `json:"skipped,omitempty"`
}

func (r *Result) Count() int {
	return len(r.Transitions)
}

func (r *Result) Transitioned() bool {
	return len(r.Transitions) > 0
}

func (r *Result) add(t *Transition) {
	if t != nil {
		r.Transitions = append(r.Transitions, *t)
	}
}

func (r *Result) skip(id uuid.UUID, status models.ContestStatus, reason string) {
	r.Skipped = append(r.Skipped, Skip{ContestInstanceID: id, Status: status, Reason: reason})
}

// step describes one conditional status update.
type step struct {
	id      uuid.UUID
	from    models.ContestStatus
	to      models.ContestStatus
	trigger models.TriggeredBy
	now     time.Time

	// guard is an extra predicate evaluated in the same UPDATE statement.
	guard     string
	guardArgs []interface{}

	settle bool
}

// commit runs s in its own transaction.
func (m *Machine) commit(ctx context.Context, s step) (*Transition, error) {
	var out *Transition
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := m.commitTx(ctx, tx, s)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		log.Printf("[Lifecycle] Contest %s %s -> %s (%s)", out.ContestInstanceID, out.From, out.To, out.TriggeredBy)
	}
	return out, nil
}

// commitTx applies s inside tx. It returns nil, nil when the row no longer
// matches the precondition.
func (m *Machine) commitTx(ctx context.Context, tx *gorm.DB, s step) (*Transition, error) {
	q := tx.WithContext(ctx).
		Model(&models.ContestInstance{}).
		Where("id = ? AND status = ?", s.id, s.from)
	if s.guard != "" {
		q = q.Where(s.guard, s.guardArgs...)
	}

	res := q.Updates(map[string]interface{}{
		"status":     s.to,
		"updated_at": s.now,
	})
	if res.Error != nil {
		return nil, fmt.Errorf("contest %s %s -> %s: %w", s.id, s.from, s.to, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	entry := models.TransitionLogEntry{
		ContestInstanceID: s.id,
		FromStatus:        s.from,
		ToStatus:          s.to,
		TriggeredBy:       s.trigger,
		OccurredAt:        s.now,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("log transition %s %s -> %s: %w", s.id, s.from, s.to, err)
	}

	t := &Transition{
		ContestInstanceID: s.id,
		From:              s.from,
		To:                s.to,
		TriggeredBy:       s.trigger,
		OccurredAt:        s.now,
	}

	if s.settle {
		n, err := m.settle(ctx, tx, s.id, s.now)
		if err != nil {
			return nil, err
		}
		t.Settlements = n
	}

	return t, nil
}

func (m *Machine) settle(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (int, error) {
	if m.settler == nil || m.standings == nil {
		return 0, errors.New("settlement engine not configured")
	}

	var instance models.ContestInstance
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return 0, fmt.Errorf("load contest %s for settlement: %w", id, err)
	}

	snapshot, err := m.standings.Capture(ctx, tx, &instance)
	if err != nil {
		return 0, fmt.Errorf("settle contest %s: %w", id, err)
	}

	records, err := m.settler.Settle(ctx, tx, &instance, snapshot, now)
	if err != nil {
		return 0, fmt.Errorf("settle contest %s: %w", id, err)
	}
	return len(records), nil
}

// load reads an instance outside any transaction.
func (m *Machine) load(ctx context.Context, id uuid.UUID) (*models.ContestInstance, error) {
	var instance models.ContestInstance
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContestNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load contest %s: %w", id, err)
	}
	return &instance, nil
}

// lockInstance reads an instance with a row lock inside tx.
func lockInstance(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ContestInstance, error) {
	var instance models.ContestInstance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContestNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock contest %s: %w", id, err)
	}
	return &instance, nil
}

func validateNow(now time.Time) error {
	if now.IsZero() {
		return invalid("now", "must be set")
	}
	return nil
}
