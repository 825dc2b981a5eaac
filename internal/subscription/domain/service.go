package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Upsert overwrites the (tenant, user) snapshot with provider state.
	Upsert(ctx context.Context, sub *Subscription) (*Subscription, error)
	// Get returns the snapshot, or (nil, nil) when the user never subscribed.
	Get(ctx context.Context, tenantID snowflake.ID, userID string) (*Subscription, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID string) (*Subscription, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidPlan   = errors.New("invalid_plan")
	ErrInvalidStatus = errors.New("invalid_status")
)
