package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	inventorydomain "github.com/tollwaylabs/tollway/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() inventorydomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, item *inventorydomain.InventoryItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory_items (
			id, tenant_id, price_id, mode, quantity, sold_out, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, price_id, mode) DO UPDATE SET
			quantity = excluded.quantity,
			sold_out = excluded.sold_out,
			updated_at = excluded.updated_at`,
		item.ID,
		item.TenantID,
		item.PriceID,
		item.Mode,
		item.Quantity,
		item.SoldOut,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, priceID, mode string) (*inventorydomain.InventoryItem, error) {
	var item inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, price_id, mode, quantity, sold_out, created_at, updated_at
		 FROM inventory_items WHERE tenant_id = ? AND price_id = ? AND mode = ? LIMIT 1`,
		tenantID,
		priceID,
		mode,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// SET expressions read the pre-update row, so the sold_out comparison uses
// the old quantity: old <= requested means the row lands on zero.
func (r *repo) DecrementClamped(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, priceID, mode string, quantity int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE inventory_items
		 SET quantity = CASE WHEN quantity > ? THEN quantity - ? ELSE 0 END,
			sold_out = quantity <= ?,
			updated_at = ?
		 WHERE tenant_id = ? AND price_id = ? AND mode = ?`,
		quantity,
		quantity,
		quantity,
		now,
		tenantID,
		priceID,
		mode,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
