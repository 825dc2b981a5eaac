// Package domain contains persistence models for the tenant registry.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Tenant is one platform customer reselling metered API access.
type Tenant struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ExternalID string            `gorm:"column:external_id;type:text;not null;uniqueIndex:ux_tenants_external_id" json:"external_id"`
	Name       string            `gorm:"type:text;not null" json:"name"`
	Slug       string            `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Metadata keys for tenant-scoped payment provider access tokens. When
// absent, the platform-level token from the environment is used.
const (
	MetadataPaymentTokenTest = "payment_access_token_test"
	MetadataPaymentTokenLive = "payment_access_token_live"
)

// PaymentAccessToken returns the tenant-scoped provider token for a mode,
// or "" when the tenant runs on the platform account.
func (t Tenant) PaymentAccessToken(mode string) string {
	key := MetadataPaymentTokenTest
	if strings.EqualFold(strings.TrimSpace(mode), "live") {
		key = MetadataPaymentTokenLive
	}
	value, ok := t.Metadata[key]
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return strings.TrimSpace(token)
}
