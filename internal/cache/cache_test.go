package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("hot", 7, time.Millisecond)

	if value, ok := c.Get("hot"); !ok || value != 7 {
		t.Fatalf("expected fresh entry, got value=%d ok=%v", value, ok)
	}

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("hot"); ok {
		t.Fatal("expected entry to expire")
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("expected expired entry evicted on read, len=%d", got)
	}
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("pinned", "value", 0)

	time.Sleep(2 * time.Millisecond)
	if value, ok := c.Get("pinned"); !ok || value != "value" {
		t.Fatalf("expected pinned entry, got value=%q ok=%v", value, ok)
	}
}

func TestCredentialResolverCacheRoundTrip(t *testing.T) {
	resolver := NewCredentialResolverCache()
	tenantID := snowflake.ID(1234567890)
	cred := &credentialdomain.Credential{
		ID:             snowflake.ID(42),
		TenantID:       tenantID,
		PublishableKey: "pk_test_abc",
		SecretHash:     "deadbeef",
		Mode:           credentialdomain.ModeTest,
	}

	resolver.SetBySecretHash(cred.SecretHash, cred)
	resolver.SetByPublishableKey(cred.PublishableKey, cred)

	if got, ok := resolver.GetBySecretHash("deadbeef"); !ok || got.TenantID != tenantID {
		t.Fatalf("expected cached credential, got %+v ok=%v", got, ok)
	}
	if got, ok := resolver.GetByPublishableKey("pk_test_abc"); !ok || got.TenantID != tenantID {
		t.Fatalf("expected cached project credential, got %+v ok=%v", got, ok)
	}

	resolver.DeleteBySecretHash("deadbeef")
	resolver.DeleteByPublishableKey("pk_test_abc")

	if _, ok := resolver.GetBySecretHash("deadbeef"); ok {
		t.Fatal("expected secret hash entry removed")
	}
	if _, ok := resolver.GetByPublishableKey("pk_test_abc"); ok {
		t.Fatal("expected publishable key entry removed")
	}
}

func TestCredentialResolverCacheIgnoresEmptyAndNil(t *testing.T) {
	resolver := NewCredentialResolverCache()

	resolver.SetBySecretHash("abc", nil)
	if _, ok := resolver.GetBySecretHash("abc"); ok {
		t.Fatal("nil credentials must not be cached")
	}

	resolver.SetByPublishableKey("  ", &credentialdomain.Credential{TenantID: 9})
	if _, ok := resolver.GetByPublishableKey("  "); ok {
		t.Fatal("blank keys must not be cached")
	}

	resolver.SetByPublishableKey("pk_test_zero", &credentialdomain.Credential{})
	if _, ok := resolver.GetByPublishableKey("pk_test_zero"); ok {
		t.Fatal("credentials without a tenant must not be cached")
	}
}
