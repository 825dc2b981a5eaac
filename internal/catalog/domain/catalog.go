// Package domain describes the sellable tier catalog.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	"gorm.io/gorm"
)

// Tier is one sellable plan with its per-period request cap.
type Tier struct {
	Plan        string            `json:"plan"`
	PriceAmount int64             `json:"price_amount"`
	Currency    string            `json:"currency"`
	Limit       usagedomain.Limit `json:"limit"`
}

// TierRecord stores a tenant-specific tier override. Platform defaults come
// from the catalog config file; rows here replace or extend them per tenant.
type TierRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_tiers_tenant_plan,priority:1"`
	Plan        string       `gorm:"type:text;not null;uniqueIndex:ux_tiers_tenant_plan,priority:2"`
	PriceAmount int64        `gorm:"column:price_amount;not null"`
	Currency    string       `gorm:"type:text;not null;default:'usd'"`
	UsageLimit  *int64       `gorm:"column:usage_limit"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TierRecord) TableName() string { return "tiers" }

type Service interface {
	// GetLimit resolves the request cap for a plan. Blank or unknown plans
	// fall back to the tenant's default tier.
	GetLimit(ctx context.Context, tenantID snowflake.ID, plan string) (usagedomain.Limit, error)
	// DefaultPlan returns the lowest-priced tier for the tenant.
	DefaultPlan(ctx context.Context, tenantID snowflake.ID) (string, error)
	// Tiers lists the effective catalog for the tenant, cheapest first.
	Tiers(ctx context.Context, tenantID snowflake.ID) ([]Tier, error)
}

type Repository interface {
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]TierRecord, error)
	Upsert(ctx context.Context, db *gorm.DB, record *TierRecord) error
}

var ErrEmptyCatalog = errors.New("empty_catalog")
