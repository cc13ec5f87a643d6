package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LockStrategy string

const (
	LockStrategyFirstEventStart LockStrategy = "FIRST_EVENT_START"
	LockStrategyFixedTimestamp  LockStrategy = "FIXED_TIMESTAMP"
)

func (s LockStrategy) Valid() bool {
	return s == LockStrategyFirstEventStart || s == LockStrategyFixedTimestamp
}

type TemplateStatus string

const (
	TemplateStatusActive    TemplateStatus = "ACTIVE"
	TemplateStatusCancelled TemplateStatus = "CANCELLED"
)

// ContestTemplate is an ops-authored blueprint for contest instances
type ContestTemplate struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string          `gorm:"size:255;not null" json:"name"`
	Slug                string          `gorm:"size:255;not null;index" json:"slug"`
	Description         string          `gorm:"type:text" json:"description"`
	LockStrategy        LockStrategy    `gorm:"size:30;not null" json:"lock_strategy"`
	MinEntryFee         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"min_entry_fee"`
	MaxEntryFee         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"max_entry_fee"`
	AllowedPayoutShapes StringList      `gorm:"type:text" json:"allowed_payout_shapes"`
	Status              TemplateStatus  `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (ContestTemplate) TableName() string {
	return "contest_templates"
}

func (t *ContestTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// AllowsShape reports whether shape is one of the template's payout shapes.
func (t *ContestTemplate) AllowsShape(shape string) bool {
	for _, s := range t.AllowedPayoutShapes {
		if s == shape {
			return true
		}
	}
	return false
}

// TemplateView is a template as the query surface shows it
type TemplateView struct {
	ContestTemplate
	OpenContests int64 `json:"open_contests"`
	Editable     bool  `json:"editable"`
}
