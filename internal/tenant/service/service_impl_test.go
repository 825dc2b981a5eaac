package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
	"github.com/tollwaylabs/tollway/internal/tenant/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestEnsureCreatesOnFirstLogin(t *testing.T) {
	svc, db := setupTenantService(t)

	tenant, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{
		ExternalID: "user_2abc",
		Name:       "Acme Widgets",
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if tenant.ID == 0 {
		t.Fatal("expected tenant id")
	}
	if tenant.Slug != "acme-widgets" {
		t.Fatalf("expected slugified name, got %q", tenant.Slug)
	}

	again, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{
		ExternalID: "user_2abc",
		Name:       "Acme Widgets Renamed",
	})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != tenant.ID {
		t.Fatalf("ensure must be idempotent, got %s vs %s", again.ID, tenant.ID)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM tenants`).Scan(&count).Error; err != nil {
		t.Fatalf("count tenants: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 tenant row, got %d", count)
	}
}

func TestEnsureResolvesSlugCollision(t *testing.T) {
	svc, _ := setupTenantService(t)

	first, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{
		ExternalID: "user_a",
		Name:       "Same Name",
	})
	if err != nil {
		t.Fatalf("ensure first: %v", err)
	}

	second, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{
		ExternalID: "user_b",
		Name:       "Same Name",
	})
	if err != nil {
		t.Fatalf("ensure second: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected distinct tenants")
	}
	if second.Slug == first.Slug {
		t.Fatalf("expected slug collision resolved, both %q", first.Slug)
	}
}

func TestEnsureRejectsBlankInput(t *testing.T) {
	svc, _ := setupTenantService(t)

	if _, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{Name: "x"}); err != tenantdomain.ErrInvalidExternalID {
		t.Fatalf("expected ErrInvalidExternalID, got %v", err)
	}
	if _, err := svc.Ensure(context.Background(), tenantdomain.EnsureRequest{ExternalID: "u"}); err != tenantdomain.ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestPaymentAccessTokenByMode(t *testing.T) {
	tenant := tenantdomain.Tenant{
		Metadata: map[string]interface{}{
			tenantdomain.MetadataPaymentTokenTest: "tok_test_1",
			tenantdomain.MetadataPaymentTokenLive: "tok_live_1",
		},
	}
	if got := tenant.PaymentAccessToken("test"); got != "tok_test_1" {
		t.Fatalf("test mode token: %q", got)
	}
	if got := tenant.PaymentAccessToken("live"); got != "tok_live_1" {
		t.Fatalf("live mode token: %q", got)
	}
	if got := (tenantdomain.Tenant{}).PaymentAccessToken("live"); got != "" {
		t.Fatalf("missing token must be empty, got %q", got)
	}
}

func setupTenantService(t *testing.T) (tenantdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.Exec(`CREATE TABLE tenants (
		id INTEGER PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create tenants table: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, db
}
