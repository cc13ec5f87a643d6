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
)

// timedEdge is a time-driven edge of the lifecycle graph.
type timedEdge struct {
	from   models.ContestStatus
	to     models.ContestStatus
	column string
	settle bool
}

var (
	scheduleToLock = timedEdge{models.ContestStatusScheduled, models.ContestStatusLocked, "lock_time", false}
	lockToLive     = timedEdge{models.ContestStatusLocked, models.ContestStatusLive, "tournament_start_time", false}
	liveToComplete = timedEdge{models.ContestStatusLive, models.ContestStatusComplete, "tournament_end_time", true}
)

func (e timedEdge) guard() string {
	return e.column + " IS NOT NULL AND " + e.column + " <= ?"
}

func (e timedEdge) timestamp(c *models.ContestInstance) *time.Time {
	switch e.column {
	case "lock_time":
		return c.LockTime
	case "tournament_start_time":
		return c.TournamentStartTime
	default:
		return c.TournamentEndTime
	}
}

// ScheduleToLock locks every SCHEDULED contest whose lock_time has passed.
func (m *Machine) ScheduleToLock(ctx context.Context, now time.Time) (*Result, error) {
	return m.runTimed(ctx, now, scheduleToLock)
}

// ScheduleToLockForInstance locks one SCHEDULED contest ahead of its
// lock_time. The lock_time must still be known.
func (m *Machine) ScheduleToLockForInstance(ctx context.Context, now time.Time, id uuid.UUID) (*Result, error) {
	return m.forceTimed(ctx, now, id, scheduleToLock, models.TriggeredByAdmin)
}

// LockToLive moves every LOCKED contest whose tournament has started to LIVE.
func (m *Machine) LockToLive(ctx context.Context, now time.Time) (*Result, error) {
	return m.runTimed(ctx, now, lockToLive)
}

func (m *Machine) LockToLiveForInstance(ctx context.Context, now time.Time, id uuid.UUID) (*Result, error) {
	return m.forceTimed(ctx, now, id, lockToLive, models.TriggeredByAdmin)
}

// LiveToComplete completes and settles every LIVE contest whose tournament
// has ended. Each contest is flipped and settled in one transaction; a
// settlement failure leaves that contest LIVE and is reported in the joined
// error while the remaining contests still proceed.
func (m *Machine) LiveToComplete(ctx context.Context, now time.Time) (*Result, error) {
	return m.runTimed(ctx, now, liveToComplete)
}

// LiveToCompleteForInstance completes and settles one LIVE contest on
// request. The transition is logged as SETTLEMENT.
func (m *Machine) LiveToCompleteForInstance(ctx context.Context, now time.Time, id uuid.UUID) (*Result, error) {
	return m.forceTimed(ctx, now, id, liveToComplete, models.TriggeredBySettlement)
}

func (m *Machine) runTimed(ctx context.Context, now time.Time, e timedEdge) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	err := m.db.WithContext(ctx).
		Model(&models.ContestInstance{}).
		Where("status = ?", e.from).
		Where(e.guard(), now).
		Order(e.column + " ASC").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find %s contests due for %s: %w", e.from, e.to, err)
	}

	result := &Result{}
	var errs []error
	for _, id := range ids {
		t, err := m.commit(ctx, step{
			id:        id,
			from:      e.from,
			to:        e.to,
			trigger:   models.TriggeredByTimeReached,
			now:       now,
			guard:     e.guard(),
			guardArgs: []interface{}{now},
			settle:    e.settle,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.add(t)
	}

	return result, errors.Join(errs...)
}

func (m *Machine) forceTimed(
	ctx context.Context,
	now time.Time,
	id uuid.UUID,
	e timedEdge,
	trigger models.TriggeredBy,
) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}

	instance, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if instance.Status != e.from {
		result.skip(id, instance.Status, fmt.Sprintf("not %s", e.from))
		return result, nil
	}
	if e.timestamp(instance) == nil {
		return nil, invalid(e.column, fmt.Sprintf("contest %s has no %s", id, e.column))
	}

	t, err := m.commit(ctx, step{
		id:      id,
		from:    e.from,
		to:      e.to,
		trigger: trigger,
		now:     now,
		guard:   e.column + " IS NOT NULL",
		settle:  e.settle,
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		result.skip(id, instance.Status, "changed concurrently")
	}
	result.add(t)
	return result, nil
}

// Scope selects the contests ToCancelled applies to: one instance (admin
// path) or every instance of a template (provider path).
type Scope struct {
	InstanceID *uuid.UUID
	TemplateID *uuid.UUID
}

func InstanceScope(id uuid.UUID) Scope {
	return Scope{InstanceID: &id}
}

func TemplateScope(id uuid.UUID) Scope {
	return Scope{TemplateID: &id}
}

func (s Scope) validate() error {
	if (s.InstanceID == nil) == (s.TemplateID == nil) {
		return invalid("scope", "exactly one of instance or template must be set")
	}
	return nil
}

// ToCancelled cancels every non-terminal contest in scope. Instance scope is
// logged as ADMIN, template scope as PROVIDER_CANCELLED.
func (m *Machine) ToCancelled(ctx context.Context, now time.Time, scope Scope) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}
	if err := scope.validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if scope.TemplateID != nil {
			return m.cancelTemplateInstances(ctx, tx, now, *scope.TemplateID, result)
		}

		instance, err := lockInstance(ctx, tx, *scope.InstanceID)
		if err != nil {
			return err
		}
		if instance.Status.IsTerminal() {
			result.skip(instance.ID, instance.Status, "already terminal")
			return nil
		}

		t, err := m.commitTx(ctx, tx, step{
			id:      instance.ID,
			from:    instance.Status,
			to:      models.ContestStatusCancelled,
			trigger: models.TriggeredByAdmin,
			now:     now,
		})
		if err != nil {
			return err
		}
		if t == nil {
			result.skip(instance.ID, instance.Status, "changed concurrently")
		}
		result.add(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransitions(result)
	return result, nil
}

// ToError parks a non-terminal contest in ERROR for manual investigation.
func (m *Machine) ToError(ctx context.Context, now time.Time, id uuid.UUID) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}

	result := &Result{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, err := lockInstance(ctx, tx, id)
		if err != nil {
			return err
		}
		if instance.Status.IsTerminal() || instance.Status == models.ContestStatusError {
			result.skip(id, instance.Status, "already terminal or in ERROR")
			return nil
		}

		t, err := m.commitTx(ctx, tx, step{
			id:      id,
			from:    instance.Status,
			to:      models.ContestStatusError,
			trigger: models.TriggeredByAdmin,
			now:     now,
		})
		if err != nil {
			return err
		}
		result.add(t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logTransitions(result)
	return result, nil
}

// ErrorToTerminal resolves a contest in ERROR to COMPLETE (settling it in the
// same transaction) or CANCELLED.
func (m *Machine) ErrorToTerminal(
	ctx context.Context,
	now time.Time,
	id uuid.UUID,
	target models.ContestStatus,
) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}
	if !target.IsTerminal() {
		return nil, invalid("target", fmt.Sprintf("%q is not COMPLETE or CANCELLED", target))
	}

	instance, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if instance.Status != models.ContestStatusError {
		result.skip(id, instance.Status, "not ERROR")
		return result, nil
	}

	t, err := m.commit(ctx, step{
		id:      id,
		from:    models.ContestStatusError,
		to:      target,
		trigger: models.TriggeredByAdmin,
		now:     now,
		settle:  target == models.ContestStatusComplete,
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		result.skip(id, instance.Status, "changed concurrently")
	}
	result.add(t)
	return result, nil
}

func logTransitions(r *Result) {
	for _, t := range r.Transitions {
		log.Printf("[Lifecycle] Contest %s %s -> %s (%s)", t.ContestInstanceID, t.From, t.To, t.TriggeredBy)
	}
}
