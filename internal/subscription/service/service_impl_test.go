package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/tollwaylabs/tollway/internal/clock"
	subscriptiondomain "github.com/tollwaylabs/tollway/internal/subscription/domain"
	"github.com/tollwaylabs/tollway/internal/subscription/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSubscriptionService(t *testing.T) (subscriptiondomain.Service, *gorm.DB, *clock.FakeClock) {
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

	if err := db.Exec(`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		tenant_id BIGINT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		provider_id TEXT NOT NULL DEFAULT '',
		plan TEXT NOT NULL,
		status TEXT NOT NULL,
		price_id TEXT NOT NULL DEFAULT '',
		amount BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		current_period_end TIMESTAMP,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
		canceled_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create subscriptions table: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_subscriptions_tenant_user
		ON subscriptions (tenant_id, user_id)`).Error; err != nil {
		t.Fatalf("create subscriptions unique index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, db, clk
}

func TestUpsertOverwritesSnapshot(t *testing.T) {
	svc, db, clk := setupSubscriptionService(t)

	periodEnd := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	first, err := svc.Upsert(context.Background(), &subscriptiondomain.Subscription{
		TenantID:         4201,
		UserID:           "user_9",
		ProviderID:       "sub_1N4mGk",
		Plan:             "pro",
		Status:           subscriptiondomain.SubscriptionStatusActive,
		PriceID:          "price_pro_monthly",
		Amount:           1900,
		Currency:         "USD",
		CurrentPeriodEnd: &periodEnd,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.Currency != "usd" {
		t.Fatalf("currency = %q, want normalized usd", first.Currency)
	}

	clk.Advance(48 * time.Hour)
	canceledAt := clk.Now().UTC()
	second, err := svc.Upsert(context.Background(), &subscriptiondomain.Subscription{
		TenantID:   4201,
		UserID:     "user_9",
		ProviderID: "sub_1N4mGk",
		Plan:       "free",
		Status:     "CANCELED",
		CanceledAt: &canceledAt,
	})
	if err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}

	// Conflict path keeps the original row: same id, replaced payload.
	if second.ID != first.ID {
		t.Fatalf("id changed on overwrite: %s vs %s", second.ID, first.ID)
	}
	if second.Status != subscriptiondomain.SubscriptionStatusCanceled {
		t.Fatalf("status = %q, want canceled", second.Status)
	}
	if second.Plan != "free" {
		t.Fatalf("plan = %q, want free", second.Plan)
	}
	if second.CanceledAt == nil {
		t.Fatal("canceled_at not stored")
	}
	if second.CurrentPeriodEnd != nil {
		t.Fatal("current_period_end survived a wholesale overwrite")
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM subscriptions`).Scan(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestUpsertValidation(t *testing.T) {
	svc, _, _ := setupSubscriptionService(t)

	_, err := svc.Upsert(context.Background(), &subscriptiondomain.Subscription{UserID: "user_9", Plan: "pro", Status: "active"})
	if !errors.Is(err, subscriptiondomain.ErrInvalidTenant) {
		t.Fatalf("missing tenant: err = %v", err)
	}
	_, err = svc.Upsert(context.Background(), &subscriptiondomain.Subscription{TenantID: 1, Status: "active"})
	if !errors.Is(err, subscriptiondomain.ErrInvalidPlan) {
		t.Fatalf("missing plan: err = %v", err)
	}
	_, err = svc.Upsert(context.Background(), &subscriptiondomain.Subscription{TenantID: 1, Plan: "pro"})
	if !errors.Is(err, subscriptiondomain.ErrInvalidStatus) {
		t.Fatalf("missing status: err = %v", err)
	}
}

func TestGetNeverSubscribed(t *testing.T) {
	svc, _, _ := setupSubscriptionService(t)

	sub, err := svc.Get(context.Background(), 4202, "user_ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil snapshot, got %+v", sub)
	}
}

func TestStatusUsable(t *testing.T) {
	usable := []subscriptiondomain.SubscriptionStatus{
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusTrialing,
	}
	for _, status := range usable {
		if !status.Usable() {
			t.Fatalf("status %q should be usable", status)
		}
	}
	unusable := []subscriptiondomain.SubscriptionStatus{
		subscriptiondomain.SubscriptionStatusPastDue,
		subscriptiondomain.SubscriptionStatusCanceled,
		subscriptiondomain.SubscriptionStatusUnpaid,
	}
	for _, status := range unusable {
		if status.Usable() {
			t.Fatalf("status %q should not be usable", status)
		}
	}
}
