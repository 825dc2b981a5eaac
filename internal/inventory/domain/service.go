package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type DecrementRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	PriceID  string       `json:"price_id"`
	Mode     string       `json:"mode"`
	Quantity int64        `json:"quantity"`
}

type SeedRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	PriceID  string       `json:"price_id"`
	Mode     string       `json:"mode"`
	Quantity int64        `json:"quantity"`
}

type Service interface {
	// Decrement consumes stock for a completed purchase, clamping at zero
	// and flipping sold_out once the last unit goes.
	Decrement(ctx context.Context, req DecrementRequest) (*InventoryItem, error)
	// Seed sets the stock level for a price, creating the row when absent.
	Seed(ctx context.Context, req SeedRequest) (*InventoryItem, error)
	// Get returns the stock row, or (nil, nil) when the price is untracked.
	Get(ctx context.Context, tenantID snowflake.ID, priceID, mode string) (*InventoryItem, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, item *InventoryItem) error
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, priceID, mode string) (*InventoryItem, error)
	// DecrementClamped subtracts quantity in one guarded UPDATE; stock never
	// goes below zero. Reports whether a row matched.
	DecrementClamped(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, priceID, mode string, quantity int64, now time.Time) (bool, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrNotFound      = errors.New("not_found")
)
