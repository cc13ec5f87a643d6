package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/settlement"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TemplateService struct {
	repo *repository.Repository
}

func NewTemplateService(repo *repository.Repository) *TemplateService {
	return &TemplateService{repo: repo}
}

type CreateTemplateInput struct {
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	LockStrategy        models.LockStrategy `json:"lock_strategy"`
	MinEntryFee         decimal.Decimal     `json:"min_entry_fee"`
	MaxEntryFee         decimal.Decimal     `json:"max_entry_fee"`
	AllowedPayoutShapes []string            `json:"allowed_payout_shapes"`
}

// CreateTemplate creates a new ACTIVE template
func (s *TemplateService) CreateTemplate(ctx context.Context, in CreateTemplateInput) (*models.ContestTemplate, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, invalid("name", "required")
	case !in.LockStrategy.Valid():
		return nil, invalid("lock_strategy", fmt.Sprintf("unknown strategy %q", in.LockStrategy))
	case in.MinEntryFee.IsNegative():
		return nil, invalid("min_entry_fee", "must not be negative")
	case in.MaxEntryFee.LessThan(in.MinEntryFee):
		return nil, invalid("max_entry_fee", "must not be below min_entry_fee")
	case len(in.AllowedPayoutShapes) == 0:
		return nil, invalid("allowed_payout_shapes", "at least one shape required")
	}

	tmpl := &models.ContestTemplate{
		Name:                name,
		Slug:                slug.Make(name),
		Description:         in.Description,
		LockStrategy:        in.LockStrategy,
		MinEntryFee:         in.MinEntryFee,
		MaxEntryFee:         in.MaxEntryFee,
		AllowedPayoutShapes: models.StringList(in.AllowedPayoutShapes),
		Status:              models.TemplateStatusActive,
	}
	if err := s.repo.CreateTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	log.Printf("[Template] Created template %s (%s)", tmpl.ID, tmpl.Slug)
	return tmpl, nil
}

// GetTemplateView returns a template with how many of its contests are
// still open. Metadata edits are refused while that count is non-zero.
func (s *TemplateService) GetTemplateView(ctx context.Context, id uuid.UUID) (*models.TemplateView, error) {
	tmpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.CountNonTerminalInstances(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count open contests: %w", err)
	}
	return &models.TemplateView{
		ContestTemplate: *tmpl,
		OpenContests:    open,
		Editable:        open == 0,
	}, nil
}

// GetTemplate retrieves a template
func (s *TemplateService) GetTemplate(ctx context.Context, id uuid.UUID) (*models.ContestTemplate, error) {
	tmpl, err := s.repo.GetTemplate(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrTemplateNotFound, id)
	}
	return tmpl, err
}

// ListTemplates lists templates
func (s *TemplateService) ListTemplates(ctx context.Context, limit, offset int) ([]models.ContestTemplate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListTemplates(ctx, limit, offset)
}

// UpdateTemplateMetadata renames a template. Refused with ErrTemplateBusy
// while any of its contests is non-terminal.
func (s *TemplateService) UpdateTemplateMetadata(
	ctx context.Context,
	id uuid.UUID,
	name, description string,
	now time.Time,
) (*models.ContestTemplate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "required")
	}

	err := s.repo.UpdateTemplateMetadata(ctx, id, name, slug.Make(name), description, now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, id)
}

type CreateInstanceInput struct {
	TemplateID          uuid.UUID          `json:"template_id"`
	EntryFee            decimal.Decimal    `json:"entry_fee"`
	PayoutShape         string             `json:"payout_shape"`
	PayoutTable         models.PayoutTable `json:"payout_table"`
	LockTime            *time.Time         `json:"lock_time"`
	TournamentStartTime *time.Time         `json:"tournament_start_time"`
	TournamentEndTime   *time.Time         `json:"tournament_end_time"`
}

// CreateInstance creates a SCHEDULED contest from an active template
func (s *TemplateService) CreateInstance(ctx context.Context, in CreateInstanceInput) (*models.ContestInstance, error) {
	tmpl, err := s.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl.Status == models.TemplateStatusCancelled {
		return nil, fmt.Errorf("%w: %s", ErrTemplateCancelled, tmpl.ID)
	}

	if in.EntryFee.LessThan(tmpl.MinEntryFee) || in.EntryFee.GreaterThan(tmpl.MaxEntryFee) {
		return nil, invalid("entry_fee", fmt.Sprintf("must be between %s and %s",
			tmpl.MinEntryFee.StringFixed(2), tmpl.MaxEntryFee.StringFixed(2)))
	}
	if !tmpl.AllowsShape(in.PayoutShape) {
		return nil, invalid("payout_shape", fmt.Sprintf("%q not allowed by template", in.PayoutShape))
	}
	if err := settlement.ValidatePayoutTable(in.PayoutTable); err != nil {
		return nil, invalid("payout_table", err.Error())
	}

	times, err := scheduleFor(tmpl.LockStrategy, repository.InstanceTimes{
		LockTime:            in.LockTime,
		TournamentStartTime: in.TournamentStartTime,
		TournamentEndTime:   in.TournamentEndTime,
	})
	if err != nil {
		return nil, err
	}

	instance := &models.ContestInstance{
		TemplateID:          tmpl.ID,
		EntryFee:            in.EntryFee.Round(2),
		PayoutShape:         in.PayoutShape,
		PayoutTable:         in.PayoutTable,
		Status:              models.ContestStatusScheduled,
		LockTime:            times.LockTime,
		TournamentStartTime: times.TournamentStartTime,
		TournamentEndTime:   times.TournamentEndTime,
	}
	if err := s.repo.CreateInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create contest: %w", err)
	}

	log.Printf("[Template] Created contest %s from template %s", instance.ID, tmpl.ID)
	return instance, nil
}

// UpdateInstanceTimes reschedules a contest that is still SCHEDULED
func (s *TemplateService) UpdateInstanceTimes(
	ctx context.Context,
	id uuid.UUID,
	in repository.InstanceTimes,
	now time.Time,
) (*models.ContestInstance, error) {
	instance, err := s.repo.GetInstance(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrContestNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	tmpl, err := s.GetTemplate(ctx, instance.TemplateID)
	if err != nil {
		return nil, err
	}

	times, err := scheduleFor(tmpl.LockStrategy, in)
	if err != nil {
		return nil, err
	}

	err = s.repo.UpdateInstanceTimes(ctx, id, times, now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", lifecycle.ErrContestNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.repo.GetInstance(ctx, id)
}

// scheduleFor derives the lock time from the template's strategy and checks
// lock <= start <= end for the times that are known.
func scheduleFor(strategy models.LockStrategy, in repository.InstanceTimes) (repository.InstanceTimes, error) {
	out := repository.InstanceTimes{
		LockTime:            utc(in.LockTime),
		TournamentStartTime: utc(in.TournamentStartTime),
		TournamentEndTime:   utc(in.TournamentEndTime),
	}

	switch strategy {
	case models.LockStrategyFirstEventStart:
		out.LockTime = out.TournamentStartTime
	case models.LockStrategyFixedTimestamp:
		if out.LockTime == nil {
			return out, invalid("lock_time", "required by FIXED_TIMESTAMP templates")
		}
	default:
		return out, invalid("lock_strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}

	if out.LockTime != nil && out.TournamentStartTime != nil && out.LockTime.After(*out.TournamentStartTime) {
		return out, invalid("lock_time", "must not be after tournament_start_time")
	}
	if out.TournamentStartTime != nil && out.TournamentEndTime != nil && out.TournamentStartTime.After(*out.TournamentEndTime) {
		return out, invalid("tournament_end_time", "must not be before tournament_start_time")
	}
	if out.LockTime != nil && out.TournamentEndTime != nil && out.LockTime.After(*out.TournamentEndTime) {
		return out, invalid("tournament_end_time", "must not be before lock_time")
	}
	return out, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
