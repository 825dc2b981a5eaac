// Package domain contains persistence models for the per-user usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord accumulates metered requests for one tenant user inside a
// rolling calendar-day period. One row per (tenant, user); rollover resets
// the count in place.
type UsageRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_usage_records_tenant_user,priority:1"`
	UserID      string       `gorm:"column:user_id;type:text;not null;default:'';uniqueIndex:ux_usage_records_tenant_user,priority:2"`
	Plan        string       `gorm:"type:text;not null"`
	UsageCount  int64        `gorm:"column:usage_count;not null;default:0"`
	PeriodStart time.Time    `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time    `gorm:"column:period_end;not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
