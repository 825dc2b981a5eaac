package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]catalogdomain.TierRecord, error) {
	var records []catalogdomain.TierRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, plan, price_amount, currency, usage_limit, created_at, updated_at
		 FROM tiers WHERE tenant_id = ? ORDER BY price_amount ASC, plan ASC`,
		tenantID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *catalogdomain.TierRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tiers (id, tenant_id, plan, price_amount, currency, usage_limit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, plan) DO UPDATE SET
			price_amount = excluded.price_amount,
			currency = excluded.currency,
			usage_limit = excluded.usage_limit,
			updated_at = excluded.updated_at`,
		record.ID,
		record.TenantID,
		record.Plan,
		record.PriceAmount,
		record.Currency,
		record.UsageLimit,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}
