package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnsureRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

type Service interface {
	// Ensure returns the tenant owned by an identity-provider subject,
	// creating it on first authenticated login. Safe under concurrent calls.
	Ensure(ctx context.Context, req EnsureRequest) (*Tenant, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	// SetMetadataKey merges one key into the tenant metadata document.
	SetMetadataKey(ctx context.Context, id snowflake.ID, key string, value any) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Tenant, error)
	UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata datatypes.JSONMap) error
}

var (
	ErrInvalidExternalID = errors.New("invalid_external_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrNotFound          = errors.New("not_found")
)
