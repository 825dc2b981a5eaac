package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TrackRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	UserID   string       `json:"user_id"`
	Plan     string       `json:"plan"`
}

type TrackResult struct {
	Accepted    bool      `json:"accepted"`
	UsageCount  int64     `json:"usage_count"`
	Limit       Limit     `json:"limit"`
	Plan        string    `json:"plan"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

type Service interface {
	// Track records one request against the caller's period, rejecting once
	// the tier cap is reached. Rejection is reported in the result, not as an error.
	Track(context.Context, TrackRequest) (*TrackResult, error)
	// Check reports current usage without consuming quota.
	Check(context.Context, TrackRequest) (*TrackResult, error)
}

type Repository interface {
	// Ensure creates the (tenant, user) ledger row if absent. Reports whether
	// a row was inserted.
	Ensure(ctx context.Context, db *gorm.DB, record *UsageRecord) (bool, error)
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID string) (*UsageRecord, error)
	// ResetExpiredPeriod starts a fresh period when the stored one has lapsed.
	// The WHERE guard makes concurrent resets collapse into one winner.
	ResetExpiredPeriod(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID, plan string, periodStart, periodEnd, now time.Time) (bool, error)
	// IncrementWithinLimit bumps usage_count by one iff the cap still allows
	// it, as a single conditional UPDATE. Returns the post-increment count
	// when accepted.
	IncrementWithinLimit(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, userID, plan string, limit Limit, now time.Time) (int64, bool, error)
}

var ErrInvalidTenant = errors.New("invalid_tenant")
