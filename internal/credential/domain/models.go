// Package domain contains persistence models for project credentials.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Mode separates sandbox traffic from production traffic.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// ModeFromKey derives the mode from a key prefix. Defaults to test for
// unrecognized prefixes so malformed keys never touch live data.
func ModeFromKey(key string) Mode {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "sk_live_") || strings.HasPrefix(key, "pk_live_") {
		return ModeLive
	}
	return ModeTest
}

// Credential is one project key pair. The publishable key identifies the
// project; the secret is stored only as a sha256 digest. Identity fields are
// immutable once created, rotation inserts a replacement row.
type Credential struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID   `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	PublishableKey string         `gorm:"column:publishable_key;type:text;not null;uniqueIndex:ux_credentials_publishable_key" json:"publishable_key"`
	SecretHash     string         `gorm:"column:secret_hash;type:text;not null;uniqueIndex:ux_credentials_secret_hash" json:"-"`
	Mode           Mode           `gorm:"type:text;not null" json:"mode"`
	ProjectType    string         `gorm:"column:project_type;type:text;not null;default:''" json:"project_type"`
	Scopes         pq.StringArray `gorm:"type:text[]" json:"scopes"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	RotatedFromID  *snowflake.ID  `gorm:"column:rotated_from_id" json:"rotated_from_id,omitempty"`
	ExpiresAt      *time.Time     `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Credential) TableName() string { return "credentials" }

// Usable reports whether the credential authenticates requests at the given
// instant. Rotated credentials stay usable through their grace window.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Identity is the resolved owner of a credential.
type Identity struct {
	TenantID       snowflake.ID `json:"tenant_id"`
	PublishableKey string       `json:"publishable_key"`
	Mode           Mode         `json:"mode"`
	Scopes         []string     `json:"scopes"`
}

// Identity projects the resolution tuple out of the credential row.
func (c *Credential) Identity() *Identity {
	if c == nil {
		return nil
	}
	scopes := make([]string, 0, len(c.Scopes))
	scopes = append(scopes, c.Scopes...)
	return &Identity{
		TenantID:       c.TenantID,
		PublishableKey: c.PublishableKey,
		Mode:           c.Mode,
		Scopes:         scopes,
	}
}
