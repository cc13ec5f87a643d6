package models

import (
	"time"
)

// AdminLog records operator overrides for the audit trail. The status
// change itself is recorded in the transition log; this row only carries
// who asked for it and what came back.
type AdminLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Operator     string    `gorm:"size:100;not null;index" json:"operator"`
	Action       string    `gorm:"size:100;not null" json:"action"`
	ResourceType string    `gorm:"size:50" json:"resource_type"`
	ResourceID   string    `gorm:"size:64;index" json:"resource_id"`
	Details      JSONB     `gorm:"type:text" json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AdminLog) TableName() string {
	return "admin_logs"
}
