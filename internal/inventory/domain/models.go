// Package domain contains stock tracking for one-time purchase items.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InventoryItem tracks remaining stock for one sellable price in one mode.
// Test-mode checkouts never touch live stock.
type InventoryItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_inventory_items_tenant_price_mode,priority:1"`
	PriceID   string       `gorm:"column:price_id;type:text;not null;uniqueIndex:ux_inventory_items_tenant_price_mode,priority:2"`
	Mode      string       `gorm:"type:text;not null;uniqueIndex:ux_inventory_items_tenant_price_mode,priority:3"`
	Quantity  int64        `gorm:"not null;default:0"`
	SoldOut   bool         `gorm:"column:sold_out;not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InventoryItem) TableName() string { return "inventory_items" }
