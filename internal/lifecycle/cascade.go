package lifecycle

import (
	"context"
	"fmt"
	"time"

	"contest-lifecycle/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CancelTemplate reacts to a provider reporting that a template's event was
// cancelled. In one transaction it marks the template cancelled, row-locks
// every non-terminal instance of the template and cancels each of them with
// PROVIDER_CANCELLED. COMPLETE instances are never touched. Calling it again
// for the same template writes nothing.
func (m *Machine) CancelTemplate(ctx context.Context, now time.Time, templateID uuid.UUID) (*Result, error) {
	if err := validateNow(now); err != nil {
		return nil, err
	}
	if templateID == uuid.Nil {
		return nil, invalid("template_id", "must be set")
	}

	result := &Result{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ContestTemplate{}).
			Where("id = ? AND status <> ?", templateID, models.TemplateStatusCancelled).
			Updates(map[string]interface{}{
				"status":       models.TemplateStatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("cancel template %s: %w", templateID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.ContestTemplate{}).Where("id = ?", templateID).Count(&count).Error; err != nil {
				return fmt.Errorf("load template %s: %w", templateID, err)
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
			}
		}

		return m.cancelTemplateInstances(ctx, tx, now, templateID, result)
	})
	if err != nil {
		return nil, err
	}

	logTransitions(result)
	return result, nil
}

// cancelTemplateInstances cancels the template's non-terminal instances
// inside tx, holding row locks on all of them for the rest of tx.
func (m *Machine) cancelTemplateInstances(
	ctx context.Context,
	tx *gorm.DB,
	now time.Time,
	templateID uuid.UUID,
	result *Result,
) error {
	var instances []models.ContestInstance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("template_id = ? AND status NOT IN ?", templateID, models.TerminalStatuses).
		Order("id ASC").
		Find(&instances).Error
	if err != nil {
		return fmt.Errorf("lock instances of template %s: %w", templateID, err)
	}

	for _, instance := range instances {
		t, err := m.commitTx(ctx, tx, step{
			id:      instance.ID,
			from:    instance.Status,
			to:      models.ContestStatusCancelled,
			trigger: models.TriggeredByProviderCancelled,
			now:     now,
		})
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("cascade: locked instance %s changed during cancellation", instance.ID)
		}
		result.add(t)
	}
	return nil
}
