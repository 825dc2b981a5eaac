package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"github.com/tollwaylabs/tollway/internal/clock"
	"github.com/tollwaylabs/tollway/internal/cloudmetrics"
	"github.com/tollwaylabs/tollway/internal/config"
	obsmetrics "github.com/tollwaylabs/tollway/internal/observability/metrics"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	pkgdb "github.com/tollwaylabs/tollway/pkg/db"
	"github.com/tollwaylabs/tollway/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const txRetryAttempts = 3

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Catalog catalogdomain.Service
	Repo    usagedomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	catalog catalogdomain.Service
	repo    usagedomain.Repository
	metrics *obsmetrics.Metrics

	periodDays int
}

func New(p Params) usagedomain.Service {
	periodDays := p.Config.Usage.PeriodDays
	if periodDays < 1 {
		periodDays = 1
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		catalog: p.Catalog,
		repo:    p.Repo,
		metrics: p.Metrics,

		periodDays: periodDays,
	}
}

func (s *Service) Track(ctx context.Context, req usagedomain.TrackRequest) (*usagedomain.TrackResult, error) {
	record, plan, limit, err := s.currentPeriod(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		count    int64
		accepted bool
	)
	err = s.withTenantTx(ctx, req.TenantID, func(tx *gorm.DB) error {
		var err error
		count, accepted, err = s.repo.IncrementWithinLimit(ctx, tx, req.TenantID, record.UserID, plan, limit, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		if !accepted {
			// Cap reached: the conditional UPDATE touched nothing, so the
			// standing count comes from a plain read.
			current, err := s.repo.Find(ctx, tx, req.TenantID, record.UserID)
			if err != nil {
				return err
			}
			if current != nil {
				count = current.UsageCount
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		if s.metrics != nil {
			s.metrics.RecordUsageRejected(ctx, plan, "tier_limit")
		}
		return &usagedomain.TrackResult{
			Accepted:    false,
			UsageCount:  count,
			Limit:       limit,
			Plan:        plan,
			PeriodStart: record.PeriodStart,
			PeriodEnd:   record.PeriodEnd,
		}, nil
	}

	if s.metrics != nil {
		s.metrics.RecordUsageTracked(ctx, plan)
	}
	// Accepted requests also feed the platform accounting registry, which is
	// what the upstream bill is settled on.
	cloudmetrics.RecordUsageEvent(req.TenantID.String(), plan)
	return &usagedomain.TrackResult{
		Accepted:    true,
		UsageCount:  count,
		Limit:       limit,
		Plan:        plan,
		PeriodStart: record.PeriodStart,
		PeriodEnd:   record.PeriodEnd,
	}, nil
}

func (s *Service) Check(ctx context.Context, req usagedomain.TrackRequest) (*usagedomain.TrackResult, error) {
	record, plan, limit, err := s.currentPeriod(ctx, req)
	if err != nil {
		return nil, err
	}
	return &usagedomain.TrackResult{
		Accepted:    limit.Allows(record.UsageCount),
		UsageCount:  record.UsageCount,
		Limit:       limit,
		Plan:        plan,
		PeriodStart: record.PeriodStart,
		PeriodEnd:   record.PeriodEnd,
	}, nil
}

// currentPeriod materializes the caller's ledger row for today: create it on
// first touch, roll it over when the stored period has lapsed, then return
// the authoritative row together with the resolved plan and cap.
func (s *Service) currentPeriod(ctx context.Context, req usagedomain.TrackRequest) (*usagedomain.UsageRecord, string, usagedomain.Limit, error) {
	if req.TenantID == 0 {
		return nil, "", usagedomain.Limit{}, usagedomain.ErrInvalidTenant
	}
	userID := strings.TrimSpace(req.UserID)

	plan := strings.TrimSpace(req.Plan)
	if plan == "" {
		defaultPlan, err := s.catalog.DefaultPlan(ctx, req.TenantID)
		if err != nil {
			return nil, "", usagedomain.Limit{}, err
		}
		plan = defaultPlan
	}
	limit, err := s.catalog.GetLimit(ctx, req.TenantID, plan)
	if err != nil {
		return nil, "", usagedomain.Limit{}, err
	}

	now := s.clock.Now().UTC()
	periodStart := truncateToDay(now)
	periodEnd := periodStart.AddDate(0, 0, s.periodDays-1)

	var record *usagedomain.UsageRecord
	err = s.withTenantTx(ctx, req.TenantID, func(tx *gorm.DB) error {
		inserted, err := s.repo.Ensure(ctx, tx, &usagedomain.UsageRecord{
			ID:          s.genID.Generate(),
			TenantID:    req.TenantID,
			UserID:      userID,
			Plan:        plan,
			UsageCount:  0,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			reset, err := s.repo.ResetExpiredPeriod(ctx, tx, req.TenantID, userID, plan, periodStart, periodEnd, now)
			if err != nil {
				return err
			}
			if reset {
				s.log.Info("usage period rolled over",
					zap.String("tenant_id", req.TenantID.String()),
					zap.String("user_id", userID),
					zap.Time("period_start", periodStart),
					zap.Time("period_end", periodEnd),
				)
			}
		}

		record, err = s.repo.Find(ctx, tx, req.TenantID, userID)
		if err != nil {
			return err
		}
		if record == nil {
			return errors.New("missing_usage_record")
		}
		return nil
	})
	if err != nil {
		return nil, "", usagedomain.Limit{}, err
	}
	return record, plan, limit, nil
}

// withTenantTx runs fn in a transaction pinned to the tenant, so postgres
// row-level-security policies see the caller. Other dialects skip the pin.
// Serialization failures and lock timeouts retry up to txRetryAttempts;
// everything run inside must stay idempotent.
func (s *Service) withTenantTx(ctx context.Context, tenantID snowflake.ID, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if strings.EqualFold(tx.Dialector.Name(), "postgres") {
				if err := rls.WithTenant(tx, int64(tenantID)); err != nil {
					return err
				}
			}
			return fn(tx)
		})
		if err == nil || !pkgdb.IsRetryableErr(err) {
			return err
		}
		s.log.Debug("retrying usage transaction",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

// truncateToDay pins period boundaries to UTC midnight so every replica
// computes the same rollover cutoff.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
