package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotScheduled is returned when a non-status field of a contest is
	// edited after it left SCHEDULED.
	ErrNotScheduled = errors.New("contest is no longer scheduled")
	// ErrTemplateBusy is returned when template metadata is edited while one
	// of its contests is still running.
	ErrTemplateBusy = errors.New("template has non-terminal contests")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for callers that need a transaction
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// CreateTemplate creates a new contest template
func (r *Repository) CreateTemplate(ctx context.Context, tmpl *models.ContestTemplate) error {
	return r.db.WithContext(ctx).Create(tmpl).Error
}

// GetTemplate retrieves a template by ID
func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (*models.ContestTemplate, error) {
	var tmpl models.ContestTemplate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tmpl).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// ListTemplates lists templates, newest first
func (r *Repository) ListTemplates(ctx context.Context, limit, offset int) ([]models.ContestTemplate, error) {
	var templates []models.ContestTemplate
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&templates).Error
	return templates, err
}

// UpdateTemplateMetadata edits name, slug and description. The edit is
// refused in the same statement if any contest of the template is still
// non-terminal.
func (r *Repository) UpdateTemplateMetadata(
	ctx context.Context,
	id uuid.UUID,
	name, slug, description string,
	now time.Time,
) error {
	running := r.db.Model(&models.ContestInstance{}).
		Select("1").
		Where("template_id = ? AND status NOT IN ?", id, models.TerminalStatuses)

	res := r.db.WithContext(ctx).
		Model(&models.ContestTemplate{}).
		Where("id = ?", id).
		Where("NOT EXISTS (?)", running).
		Updates(map[string]interface{}{
			"name":        name,
			"slug":        slug,
			"description": description,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("update template %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := r.GetTemplate(ctx, id); err != nil {
		return err
	}
	return ErrTemplateBusy
}

// CountNonTerminalInstances counts the template's contests that are not
// COMPLETE or CANCELLED
func (r *Repository) CountNonTerminalInstances(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContestInstance{}).
		Where("template_id = ? AND status NOT IN ?", templateID, models.TerminalStatuses).
		Count(&count).Error
	return count, err
}

// CreateInstance creates a new contest instance
func (r *Repository) CreateInstance(ctx context.Context, instance *models.ContestInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// GetInstance retrieves a contest instance by ID
func (r *Repository) GetInstance(ctx context.Context, id uuid.UUID) (*models.ContestInstance, error) {
	var instance models.ContestInstance
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

// InstanceFilter narrows ListInstances. Zero values match everything.
type InstanceFilter struct {
	TemplateID *uuid.UUID
	Status     models.ContestStatus
	Limit      int
	Offset     int
}

// ListInstances lists contest instances ordered by lock time
func (r *Repository) ListInstances(ctx context.Context, filter InstanceFilter) ([]models.ContestInstance, error) {
	query := r.db.WithContext(ctx).Model(&models.ContestInstance{})
	if filter.TemplateID != nil {
		query = query.Where("template_id = ?", *filter.TemplateID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var instances []models.ContestInstance
	err := query.Order("lock_time ASC").Order("id ASC").Find(&instances).Error
	return instances, err
}

// InstanceTimes are the schedule columns of a contest. Nil clears a column.
type InstanceTimes struct {
	LockTime            *time.Time
	TournamentStartTime *time.Time
	TournamentEndTime   *time.Time
}

// UpdateInstanceTimes rewrites the schedule of a contest that is still
// SCHEDULED. The status check is part of the statement.
func (r *Repository) UpdateInstanceTimes(ctx context.Context, id uuid.UUID, times InstanceTimes, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.ContestInstance{}).
		Where("id = ? AND status = ?", id, models.ContestStatusScheduled).
		Updates(map[string]interface{}{
			"lock_time":             times.LockTime,
			"tournament_start_time": times.TournamentStartTime,
			"tournament_end_time":   times.TournamentEndTime,
			"updated_at":            now,
		})
	if res.Error != nil {
		return fmt.Errorf("update times of contest %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := r.GetInstance(ctx, id); err != nil {
		return err
	}
	return ErrNotScheduled
}

// GetTransitions returns a contest's transition log ordered by occurred_at, id
func (r *Repository) GetTransitions(ctx context.Context, id uuid.UUID) ([]models.TransitionLogEntry, error) {
	var entries []models.TransitionLogEntry
	err := r.db.WithContext(ctx).
		Where("contest_instance_id = ?", id).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// CreateAdminLog records an operator action
func (r *Repository) CreateAdminLog(ctx context.Context, entry *models.AdminLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetAdminLogs returns operator actions, newest first. An empty resourceID
// returns all of them.
func (r *Repository) GetAdminLogs(ctx context.Context, resourceID string, limit, offset int) ([]models.AdminLog, error) {
	query := r.db.WithContext(ctx).Model(&models.AdminLog{})
	if resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}

	var logs []models.AdminLog
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, err
}
