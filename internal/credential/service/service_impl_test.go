package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/tollwaylabs/tollway/internal/cache"
	"github.com/tollwaylabs/tollway/internal/clock"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	"github.com/tollwaylabs/tollway/internal/credential/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countingRepo struct {
	credentialdomain.Repository

	mu          sync.Mutex
	secretFinds int
}

func (r *countingRepo) FindBySecretHash(ctx context.Context, db *gorm.DB, secretHash string) (*credentialdomain.Credential, error) {
	r.mu.Lock()
	r.secretFinds++
	r.mu.Unlock()
	return r.Repository.FindBySecretHash(ctx, db, secretHash)
}

func (r *countingRepo) SecretFinds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.secretFinds
}

func TestResolveUnknownHashIsNotAnError(t *testing.T) {
	svc, _, _, _ := setupCredentialService(t)

	identity, err := svc.Resolve(context.Background(), credentialdomain.HashSecret("sk_test_missing"))
	if err != nil {
		t.Fatalf("resolve unknown: %v", err)
	}
	if identity != nil {
		t.Fatalf("unknown hash must resolve to nil, got %+v", identity)
	}
}

func TestProvisionThenResolve(t *testing.T) {
	svc, _, node, _ := setupCredentialService(t)
	tenantID := node.Generate()

	minted, err := svc.Provision(context.Background(), credentialdomain.ProvisionRequest{
		TenantID:    tenantID,
		Mode:        credentialdomain.ModeTest,
		ProjectType: "api",
		Scopes:      []string{"usage:write"},
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !strings.HasPrefix(minted.PublishableKey, "pk_test_") {
		t.Fatalf("publishable key prefix: %q", minted.PublishableKey)
	}
	if !strings.HasPrefix(minted.SecretKey, "sk_test_") {
		t.Fatalf("secret key prefix: %q", minted.SecretKey)
	}

	identity, err := svc.Resolve(context.Background(), credentialdomain.HashSecret(minted.SecretKey))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if identity == nil {
		t.Fatal("expected identity")
	}
	if identity.TenantID != tenantID || identity.PublishableKey != minted.PublishableKey || identity.Mode != credentialdomain.ModeTest {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if len(identity.Scopes) != 1 || identity.Scopes[0] != "usage:write" {
		t.Fatalf("unexpected scopes %v", identity.Scopes)
	}
}

func TestResolveServesSecondLookupFromCache(t *testing.T) {
	svc, _, node, counting := setupCredentialService(t)
	tenantID := node.Generate()

	minted, err := svc.Provision(context.Background(), credentialdomain.ProvisionRequest{
		TenantID: tenantID,
		Mode:     credentialdomain.ModeLive,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	hash := credentialdomain.HashSecret(minted.SecretKey)

	first, err := svc.Resolve(context.Background(), hash)
	if err != nil {
		t.Fatalf("resolve miss: %v", err)
	}
	if counting.SecretFinds() != 1 {
		t.Fatalf("expected 1 store lookup after miss, got %d", counting.SecretFinds())
	}

	second, err := svc.Resolve(context.Background(), hash)
	if err != nil {
		t.Fatalf("resolve hit: %v", err)
	}
	if counting.SecretFinds() != 1 {
		t.Fatalf("second resolve must be served from cache, store lookups %d", counting.SecretFinds())
	}
	if first.TenantID != second.TenantID || first.PublishableKey != second.PublishableKey || first.Mode != second.Mode {
		t.Fatalf("cache must return the identical tuple: %+v vs %+v", first, second)
	}
}

func TestRotateKeepsOldPairThroughGraceWindow(t *testing.T) {
	svc, clk, node, _ := setupCredentialService(t)
	tenantID := node.Generate()

	minted, err := svc.Provision(context.Background(), credentialdomain.ProvisionRequest{
		TenantID: tenantID,
		Mode:     credentialdomain.ModeTest,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	rotated, err := svc.Rotate(context.Background(), tenantID, minted.PublishableKey)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.PublishableKey == minted.PublishableKey {
		t.Fatal("rotation must mint a new publishable key")
	}

	oldIdentity, err := svc.Resolve(context.Background(), credentialdomain.HashSecret(minted.SecretKey))
	if err != nil {
		t.Fatalf("resolve old: %v", err)
	}
	if oldIdentity == nil {
		t.Fatal("old secret must keep resolving during the grace window")
	}

	newIdentity, err := svc.Resolve(context.Background(), credentialdomain.HashSecret(rotated.SecretKey))
	if err != nil {
		t.Fatalf("resolve new: %v", err)
	}
	if newIdentity == nil || newIdentity.PublishableKey != rotated.PublishableKey {
		t.Fatalf("new secret must resolve to the new project, got %+v", newIdentity)
	}

	clk.Advance(25 * time.Hour)
	expired, err := svc.Resolve(context.Background(), credentialdomain.HashSecret(minted.SecretKey))
	if err != nil {
		t.Fatalf("resolve expired: %v", err)
	}
	if expired != nil {
		t.Fatal("old secret must stop resolving after the grace window")
	}

	if _, ok, err := svc.ResolveTenantID(context.Background(), minted.PublishableKey); err != nil || ok {
		t.Fatalf("old publishable key must stop resolving after grace, ok=%v err=%v", ok, err)
	}
}

func TestRotateRejectsForeignTenant(t *testing.T) {
	svc, _, node, _ := setupCredentialService(t)
	owner := node.Generate()
	attacker := node.Generate()

	minted, err := svc.Provision(context.Background(), credentialdomain.ProvisionRequest{
		TenantID: owner,
		Mode:     credentialdomain.ModeTest,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if _, err := svc.Rotate(context.Background(), attacker, minted.PublishableKey); err != credentialdomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}
}

func TestResolveTenantID(t *testing.T) {
	svc, _, node, _ := setupCredentialService(t)
	tenantID := node.Generate()

	minted, err := svc.Provision(context.Background(), credentialdomain.ProvisionRequest{
		TenantID: tenantID,
		Mode:     credentialdomain.ModeTest,
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	got, ok, err := svc.ResolveTenantID(context.Background(), minted.PublishableKey)
	if err != nil || !ok || got != tenantID {
		t.Fatalf("resolve tenant: got=%v ok=%v err=%v", got, ok, err)
	}

	got, ok, err = svc.ResolveTenantID(context.Background(), "pk_test_unknown")
	if err != nil || ok || got != 0 {
		t.Fatalf("unknown publishable key: got=%v ok=%v err=%v", got, ok, err)
	}
}

func setupCredentialService(t *testing.T) (credentialdomain.Service, *clock.FakeClock, *snowflake.Node, *countingRepo) {
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

	if err := db.Exec(`CREATE TABLE credentials (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		publishable_key TEXT NOT NULL UNIQUE,
		secret_hash TEXT NOT NULL UNIQUE,
		mode TEXT NOT NULL,
		project_type TEXT NOT NULL DEFAULT '',
		scopes TEXT,
		is_active BOOLEAN NOT NULL DEFAULT true,
		rotated_from_id INTEGER,
		expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create credentials table: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	counting := &countingRepo{Repository: repository.Provide()}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  counting,
		Cache: cache.NewCredentialResolverCache(),
	})
	return svc, clk, node, counting
}
