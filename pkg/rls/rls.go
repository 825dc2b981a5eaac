package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant pins the transaction to a tenant for row-level-security
// policies. Only meaningful on postgres; callers skip it on other dialects.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_tenant_id = ?",
		fmt.Sprintf("%d", tenantID),
	).Error
}
