package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
	"github.com/tollwaylabs/tollway/internal/clock"
	"github.com/tollwaylabs/tollway/internal/config"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
	"github.com/tollwaylabs/tollway/internal/usage/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type catalogStub struct {
	limits      map[string]usagedomain.Limit
	defaultPlan string
}

func (c *catalogStub) GetLimit(_ context.Context, _ snowflake.ID, plan string) (usagedomain.Limit, error) {
	if limit, ok := c.limits[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return limit, nil
	}
	return c.limits[c.defaultPlan], nil
}

func (c *catalogStub) DefaultPlan(context.Context, snowflake.ID) (string, error) {
	return c.defaultPlan, nil
}

func (c *catalogStub) Tiers(context.Context, snowflake.ID) ([]catalogdomain.Tier, error) {
	return nil, nil
}

func freeCatalog(freeLimit int64) *catalogStub {
	return &catalogStub{
		defaultPlan: "free",
		limits: map[string]usagedomain.Limit{
			"free":       usagedomain.Bounded(freeLimit),
			"pro":        usagedomain.Unlimited(),
			"restricted": usagedomain.Bounded(0),
		},
	}
}

func setupUsageService(t *testing.T, catalog catalogdomain.Service, clk clock.Clock, periodDays int) (usagedomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	_ = db.Exec("PRAGMA journal_mode = WAL").Error
	prepareUsageSchema(t, db)

	svc := New(Params{
		Config:  config.Config{Usage: config.UsageConfig{PeriodDays: periodDays}},
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   mustNode(t),
		Clock:   clk,
		Catalog: catalog,
		Repo:    repository.Provide(),
	})
	return svc, db
}

func prepareUsageSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE usage_records (
		id BIGINT PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		plan TEXT NOT NULL,
		usage_count BIGINT NOT NULL DEFAULT 0,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create usage_records: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_usage_records_tenant_user
		ON usage_records (tenant_id, user_id)`).Error; err != nil {
		t.Fatalf("create usage unique index: %v", err)
	}
}

func countUsageRecords(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM usage_records`).Scan(&count).Error; err != nil {
		t.Fatalf("count usage records: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestTrackSequentialUntilLimit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupUsageService(t, freeCatalog(3), clk, 30)

	tenantID := snowflake.ID(9001)
	req := usagedomain.TrackRequest{TenantID: tenantID, UserID: "user_1", Plan: "free"}

	for want := int64(1); want <= 3; want++ {
		result, err := svc.Track(context.Background(), req)
		if err != nil {
			t.Fatalf("track %d: %v", want, err)
		}
		if !result.Accepted {
			t.Fatalf("track %d: rejected below the cap", want)
		}
		if result.UsageCount != want {
			t.Fatalf("track %d: count = %d", want, result.UsageCount)
		}
	}

	result, err := svc.Track(context.Background(), req)
	if err != nil {
		t.Fatalf("track over cap: %v", err)
	}
	if result.Accepted {
		t.Fatal("track over cap: accepted")
	}
	if result.UsageCount != 3 {
		t.Fatalf("rejected count = %d, want 3", result.UsageCount)
	}
	if result.Limit.IsUnlimited() || result.Limit.Value() != 3 {
		t.Fatalf("rejected limit = %v", result.Limit)
	}
	if result.Plan != "free" {
		t.Fatalf("rejected plan = %q", result.Plan)
	}

	// The rejected call must not have grown the ledger.
	if count := countUsageRecords(t, db); count != 1 {
		t.Fatalf("ledger rows = %d, want 1", count)
	}
}

func TestTrackConcurrentStopsAtLimit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(5), clk, 30)

	req := usagedomain.TrackRequest{TenantID: 9002, UserID: "user_1", Plan: "free"}

	var wg sync.WaitGroup
	var accepted atomic.Int64
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Track(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if result.Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("track concurrent: %v", err)
	}
	if got := accepted.Load(); got != 5 {
		t.Fatalf("accepted = %d, want exactly 5", got)
	}

	check, err := svc.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.UsageCount != 5 {
		t.Fatalf("final count = %d, want 5", check.UsageCount)
	}
}

func TestTrackRollsOverExpiredPeriod(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupUsageService(t, freeCatalog(3), clk, 30)

	req := usagedomain.TrackRequest{TenantID: 9003, UserID: "user_1", Plan: "free"}
	for i := 0; i < 3; i++ {
		if _, err := svc.Track(context.Background(), req); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	if result, _ := svc.Track(context.Background(), req); result.Accepted {
		t.Fatal("expected cap before rollover")
	}

	// Day 31: the 30-day period has lapsed, the count starts over.
	clk.Advance(31 * 24 * time.Hour)

	result, err := svc.Track(context.Background(), req)
	if err != nil {
		t.Fatalf("track after rollover: %v", err)
	}
	if !result.Accepted || result.UsageCount != 1 {
		t.Fatalf("after rollover: accepted=%v count=%d, want accepted count 1", result.Accepted, result.UsageCount)
	}
	wantStart := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	if !result.PeriodStart.Equal(wantStart) {
		t.Fatalf("period start = %v, want %v", result.PeriodStart, wantStart)
	}

	// Still one row per (tenant, user): rollover resets in place.
	if count := countUsageRecords(t, db); count != 1 {
		t.Fatalf("ledger rows = %d, want 1", count)
	}
}

func TestTrackZeroLimitRejectsFirstCall(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(3), clk, 30)

	result, err := svc.Track(context.Background(), usagedomain.TrackRequest{
		TenantID: 9004,
		UserID:   "user_1",
		Plan:     "restricted",
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.Accepted {
		t.Fatal("zero-limit plan accepted a request")
	}
	if result.UsageCount != 0 {
		t.Fatalf("count = %d, want 0", result.UsageCount)
	}
}

func TestTrackUnlimitedPlan(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(3), clk, 30)

	req := usagedomain.TrackRequest{TenantID: 9005, UserID: "user_1", Plan: "pro"}
	for want := int64(1); want <= 10; want++ {
		result, err := svc.Track(context.Background(), req)
		if err != nil {
			t.Fatalf("track %d: %v", want, err)
		}
		if !result.Accepted || result.UsageCount != want {
			t.Fatalf("track %d: accepted=%v count=%d", want, result.Accepted, result.UsageCount)
		}
		if !result.Limit.IsUnlimited() {
			t.Fatalf("track %d: limit = %v, want unlimited", want, result.Limit)
		}
	}
}

func TestCheckDoesNotConsumeQuota(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(3), clk, 30)

	req := usagedomain.TrackRequest{TenantID: 9006, UserID: "user_1", Plan: "free"}
	if _, err := svc.Track(context.Background(), req); err != nil {
		t.Fatalf("track: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := svc.Check(context.Background(), req)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if result.UsageCount != 1 {
			t.Fatalf("check %d: count = %d, want 1", i, result.UsageCount)
		}
		if !result.Accepted {
			t.Fatalf("check %d: reported over cap at 1/3", i)
		}
	}

	// Check on a never-seen user materializes an empty row.
	fresh, err := svc.Check(context.Background(), usagedomain.TrackRequest{
		TenantID: 9006,
		UserID:   "user_2",
		Plan:     "free",
	})
	if err != nil {
		t.Fatalf("check fresh user: %v", err)
	}
	if fresh.UsageCount != 0 {
		t.Fatalf("fresh count = %d, want 0", fresh.UsageCount)
	}
}

func TestTrackResolvesDefaultPlan(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(3), clk, 30)

	result, err := svc.Track(context.Background(), usagedomain.TrackRequest{
		TenantID: 9007,
		UserID:   "user_1",
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if result.Plan != "free" {
		t.Fatalf("plan = %q, want catalog default", result.Plan)
	}
	if result.Limit.IsUnlimited() || result.Limit.Value() != 3 {
		t.Fatalf("limit = %v, want 3", result.Limit)
	}
}

func TestTrackRejectsMissingTenant(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupUsageService(t, freeCatalog(3), clk, 30)

	if _, err := svc.Track(context.Background(), usagedomain.TrackRequest{UserID: "user_1"}); err != usagedomain.ErrInvalidTenant {
		t.Fatalf("err = %v, want ErrInvalidTenant", err)
	}
}
