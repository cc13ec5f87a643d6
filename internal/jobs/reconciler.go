package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/lifecycle"

	"github.com/go-co-op/gocron/v2"
)

// TimedTransitions are the time-driven lifecycle edges a tick drives.
type TimedTransitions interface {
	ScheduleToLock(ctx context.Context, now time.Time) (*lifecycle.Result, error)
	LockToLive(ctx context.Context, now time.Time) (*lifecycle.Result, error)
	LiveToComplete(ctx context.Context, now time.Time) (*lifecycle.Result, error)
}

// TickReport summarizes one reconciliation pass.
type TickReport struct {
	Now       time.Time `json:"now"`
	Locked    int       `json:"locked"`
	Live      int       `json:"live"`
	Completed int       `json:"completed"`
	Err       error     `json:"-"`
}

func (r TickReport) Total() int {
	return r.Locked + r.Live + r.Completed
}

// Reconciler periodically drives contests through their time-based
// transitions. Several replicas may run it at once; each edge only ever
// matches a row once.
type Reconciler struct {
	transitions TimedTransitions
	interval    time.Duration
	clock       func() time.Time
	scheduler   gocron.Scheduler
}

// NewReconciler creates a new reconciliation job
func NewReconciler(transitions TimedTransitions, interval time.Duration) *Reconciler {
	return &Reconciler{
		transitions: transitions,
		interval:    interval,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start schedules the reconciliation loop. The first tick runs immediately
// and ticks never overlap within a process.
func (r *Reconciler) Start() error {
	log.Printf("[Reconciler] Starting reconciliation job (interval: %v)", r.interval)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			r.Tick(context.Background(), r.clock())
		}),
		gocron.WithName("contest-reconciliation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule reconciliation: %w", err)
	}

	sched.Start()
	r.scheduler = sched
	return nil
}

// Stop stops the loop and waits for a running tick to finish
func (r *Reconciler) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	log.Println("[Reconciler] Stopping reconciliation job")
	return r.scheduler.Shutdown()
}

// Tick runs one pass with a single now: lock, then live, then complete, so a
// contest due for several edges moves through all of them in this pass. An
// edge that fails for some rows does not stop the later edges.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) TickReport {
	report := TickReport{Now: now}
	var errs []error

	type edge struct {
		name  string
		run   func(context.Context, time.Time) (*lifecycle.Result, error)
		count *int
	}
	edges := []edge{
		{"schedule->lock", r.transitions.ScheduleToLock, &report.Locked},
		{"lock->live", r.transitions.LockToLive, &report.Live},
		{"live->complete", r.transitions.LiveToComplete, &report.Completed},
	}

	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := e.run(ctx, now)
		if res != nil {
			*e.count = res.Count()
		}
		if err != nil {
			log.Printf("[Reconciler] Error in %s: %v", e.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}

	report.Err = errors.Join(errs...)
	if report.Total() > 0 {
		log.Printf("[Reconciler] Tick %s: locked=%d live=%d completed=%d",
			now.Format(time.RFC3339), report.Locked, report.Live, report.Completed)
	}
	return report
}
