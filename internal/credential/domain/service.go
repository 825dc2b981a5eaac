package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ProvisionRequest struct {
	TenantID    snowflake.ID `json:"tenant_id"`
	Mode        Mode         `json:"mode"`
	ProjectType string       `json:"project_type"`
	Scopes      []string     `json:"scopes"`
}

// ProvisionResponse carries the raw secret exactly once; only its digest
// survives in storage.
type ProvisionResponse struct {
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	Mode           Mode   `json:"mode"`
}

type Service interface {
	// Resolve maps a secret digest to its owning identity. Unknown digests
	// resolve to (nil, nil); errors are reserved for store failures.
	Resolve(ctx context.Context, secretHash string) (*Identity, error)
	// ResolveTenantID maps a publishable key to its tenant. Unknown keys
	// resolve to (0, false, nil).
	ResolveTenantID(ctx context.Context, publishableKey string) (snowflake.ID, bool, error)
	// Provision mints a key pair for a tenant project.
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResponse, error)
	// Rotate replaces a project's key pair. The old pair keeps working for a
	// 24h grace window, then expires.
	Rotate(ctx context.Context, tenantID snowflake.ID, publishableKey string) (*ProvisionResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, credential *Credential) error
	FindBySecretHash(ctx context.Context, db *gorm.DB, secretHash string) (*Credential, error)
	FindByPublishableKey(ctx context.Context, db *gorm.DB, publishableKey string) (*Credential, error)
	// ExpireAt schedules the end of a credential's grace window.
	ExpireAt(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, updatedAt time.Time) error
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidMode   = errors.New("invalid_mode")
	ErrNotFound      = errors.New("not_found")
)
