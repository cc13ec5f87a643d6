package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/settlement"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContestService is the read side of the core plus the two ingestion
// surfaces fed by outside collaborators.
type ContestService struct {
	repo      *repository.Repository
	machine   *lifecycle.Machine
	snapshots *settlement.SnapshotStore
}

func NewContestService(repo *repository.Repository, machine *lifecycle.Machine, snapshots *settlement.SnapshotStore) *ContestService {
	return &ContestService{
		repo:      repo,
		machine:   machine,
		snapshots: snapshots,
	}
}

// GetInstance retrieves a contest instance
func (s *ContestService) GetInstance(ctx context.Context, id uuid.UUID) (*models.ContestInstance, error) {
	instance, err := s.repo.GetInstance(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrContestNotFound, id)
	}
	return instance, err
}

// GetStatus returns the presentation view of a contest
func (s *ContestService) GetStatus(ctx context.Context, id uuid.UUID) (*models.ContestStatusView, error) {
	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ContestStatusView{
		ID:                  instance.ID,
		Status:              instance.Status,
		LockTime:            instance.LockTime,
		TournamentStartTime: instance.TournamentStartTime,
		TournamentEndTime:   instance.TournamentEndTime,
	}, nil
}

// ListInstances lists contests
func (s *ContestService) ListInstances(ctx context.Context, filter repository.InstanceFilter) ([]models.ContestInstance, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListInstances(ctx, filter)
}

// GetTransitions returns the transition log of a contest
func (s *ContestService) GetTransitions(ctx context.Context, id uuid.UUID) ([]models.TransitionLogEntry, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetTransitions(ctx, id)
}

// GetSettlements returns the payout records of a contest
func (s *ContestService) GetSettlements(ctx context.Context, id uuid.UUID) ([]models.SettlementRecord, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return settlement.Records(ctx, s.repo.DB(), id)
}

// IngestStandings accepts final standings for a contest whose tournament
// has ended and which is LIVE, or in ERROR awaiting recovery. Identical
// standings are stored once; every accepted call becomes the latest delivery.
func (s *ContestService) IngestStandings(
	ctx context.Context,
	id uuid.UUID,
	entries models.StandingsEntries,
	now time.Time,
) (*models.StandingsSnapshot, bool, error) {
	if now.IsZero() {
		return nil, false, invalid("now", "must be set")
	}
	if len(entries) == 0 {
		return nil, false, invalid("entries", "at least one entrant required")
	}

	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !acceptsStandings(instance.Status) {
		return nil, false, fmt.Errorf("%w: contest %s is %s", ErrStandingsRejected, id, instance.Status)
	}
	if instance.TournamentEndTime == nil || instance.TournamentEndTime.After(now) {
		return nil, false, fmt.Errorf("%w: contest %s has not ended", ErrStandingsRejected, id)
	}

	snap, created, err := s.snapshots.Ingest(ctx, id, entries, now)
	if errors.Is(err, settlement.ErrMalformedSnapshot) {
		return nil, false, invalid("entries", err.Error())
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		log.Printf("[Contest] Stored standings %s for contest %s (%d entrants)", snap.Hash, id, snap.EntrantCount)
	} else {
		log.Printf("[Contest] Standings %s redelivered for contest %s", snap.Hash, id)
	}
	return snap, created, nil
}

func acceptsStandings(status models.ContestStatus) bool {
	return status == models.ContestStatusLive || status == models.ContestStatusError
}

// GetStandings returns the standings settlement would use for the contest.
func (s *ContestService) GetStandings(ctx context.Context, id uuid.UUID) (*models.StandingsSnapshot, error) {
	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshots.Latest(ctx, instance)
}

// TemplateCancelled handles a provider notification that a template's event
// was cancelled.
func (s *ContestService) TemplateCancelled(ctx context.Context, templateID uuid.UUID, now time.Time) (*lifecycle.Result, error) {
	res, err := s.machine.CancelTemplate(ctx, now, templateID)
	if err != nil {
		return nil, err
	}
	log.Printf("[Contest] Template %s cancelled by provider, %d contests cancelled", templateID, res.Count())
	return res, nil
}
