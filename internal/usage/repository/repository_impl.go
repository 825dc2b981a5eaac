package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO usage_records (
			id, tenant_id, user_id, plan, usage_count, period_start, period_end,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		record.ID,
		record.TenantID,
		record.UserID,
		record.Plan,
		record.UsageCount,
		record.PeriodStart,
		record.PeriodEnd,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID string) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, user_id, plan, usage_count, period_start, period_end,
			created_at, updated_at
		 FROM usage_records WHERE tenant_id = ? AND user_id = ? LIMIT 1`,
		tenantID,
		userID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// The period_end guard keys the reset to the lapsed row, so concurrent
// callers racing past a period boundary produce exactly one reset.
func (r *repo) ResetExpiredPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID, plan string, periodStart, periodEnd, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET usage_count = 0, plan = ?, period_start = ?, period_end = ?, updated_at = ?
		 WHERE tenant_id = ? AND user_id = ? AND period_end < ?`,
		plan,
		periodStart,
		periodEnd,
		now,
		tenantID,
		userID,
		periodStart,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) IncrementWithinLimit(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID, plan string, limit usagedomain.Limit, now time.Time) (int64, bool, error) {
	if strings.EqualFold(db.Dialector.Name(), "postgres") {
		var count int64
		result := db.WithContext(ctx).Raw(
			`UPDATE usage_records
			 SET usage_count = usage_count + 1, plan = ?, updated_at = ?
			 WHERE tenant_id = ? AND user_id = ? AND (? OR usage_count < ?)
			 RETURNING usage_count`,
			plan,
			now,
			tenantID,
			userID,
			limit.IsUnlimited(),
			limit.Value(),
		).Scan(&count)
		if result.Error != nil {
			return 0, false, result.Error
		}
		return count, result.RowsAffected > 0, nil
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET usage_count = usage_count + 1, plan = ?, updated_at = ?
		 WHERE tenant_id = ? AND user_id = ? AND (? OR usage_count < ?)`,
		plan,
		now,
		tenantID,
		userID,
		limit.IsUnlimited(),
		limit.Value(),
	)
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}
	record, err := r.Find(ctx, db, tenantID, userID)
	if err != nil {
		return 0, false, err
	}
	if record == nil {
		return 0, false, nil
	}
	return record.UsageCount, true, nil
}
