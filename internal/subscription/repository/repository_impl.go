package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/tollwaylabs/tollway/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, user_id, provider_id, plan, status, price_id,
			amount, currency, current_period_end, cancel_at_period_end,
			canceled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			provider_id = excluded.provider_id,
			plan = excluded.plan,
			status = excluded.status,
			price_id = excluded.price_id,
			amount = excluded.amount,
			currency = excluded.currency,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			updated_at = excluded.updated_at`,
		sub.ID,
		sub.TenantID,
		sub.UserID,
		sub.ProviderID,
		sub.Plan,
		sub.Status,
		sub.PriceID,
		sub.Amount,
		sub.Currency,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.CanceledAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, user_id, provider_id, plan, status, price_id,
			amount, currency, current_period_end, cancel_at_period_end,
			canceled_at, created_at, updated_at
		 FROM subscriptions WHERE tenant_id = ? AND user_id = ? LIMIT 1`,
		tenantID,
		userID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}
