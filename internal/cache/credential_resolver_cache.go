package cache

import (
	"strings"
	"time"

	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
)

const (
	defaultCredentialTTL = 5 * time.Minute
	defaultTenantTTL     = 10 * time.Minute
)

// CredentialResolverCache stores hot-path credential lookups for request auth.
// Entries are advisory: resolution falls through to the database on miss, and
// callers re-check expiry on hit so a rotated key stops resolving on schedule.
type CredentialResolverCache interface {
	GetBySecretHash(secretHash string) (*credentialdomain.Credential, bool)
	SetBySecretHash(secretHash string, credential *credentialdomain.Credential)
	DeleteBySecretHash(secretHash string)
	GetByPublishableKey(publishableKey string) (*credentialdomain.Credential, bool)
	SetByPublishableKey(publishableKey string, credential *credentialdomain.Credential)
	DeleteByPublishableKey(publishableKey string)
}

type credentialResolverCache struct {
	secrets   Cache[string, *credentialdomain.Credential]
	projects  Cache[string, *credentialdomain.Credential]
	secretTTL time.Duration
	tenantTTL time.Duration
}

// NewCredentialResolverCache returns an in-memory cache tuned for the auth hot path.
func NewCredentialResolverCache() CredentialResolverCache {
	return &credentialResolverCache{
		secrets:   NewTTLCache[string, *credentialdomain.Credential](),
		projects:  NewTTLCache[string, *credentialdomain.Credential](),
		secretTTL: defaultCredentialTTL,
		tenantTTL: defaultTenantTTL,
	}
}

func (c *credentialResolverCache) GetBySecretHash(secretHash string) (*credentialdomain.Credential, bool) {
	key := cacheKey(secretHash)
	if key == "" {
		return nil, false
	}
	return c.secrets.Get(key)
}

func (c *credentialResolverCache) SetBySecretHash(secretHash string, credential *credentialdomain.Credential) {
	if credential == nil {
		return
	}
	key := cacheKey(secretHash)
	if key == "" {
		return
	}
	c.secrets.Set(key, credential, c.secretTTL)
}

func (c *credentialResolverCache) DeleteBySecretHash(secretHash string) {
	if key := cacheKey(secretHash); key != "" {
		c.secrets.Delete(key)
	}
}

func (c *credentialResolverCache) GetByPublishableKey(publishableKey string) (*credentialdomain.Credential, bool) {
	key := cacheKey(publishableKey)
	if key == "" {
		return nil, false
	}
	return c.projects.Get(key)
}

func (c *credentialResolverCache) SetByPublishableKey(publishableKey string, credential *credentialdomain.Credential) {
	if credential == nil || credential.TenantID == 0 {
		return
	}
	key := cacheKey(publishableKey)
	if key == "" {
		return
	}
	c.projects.Set(key, credential, c.tenantTTL)
}

func (c *credentialResolverCache) DeleteByPublishableKey(publishableKey string) {
	if key := cacheKey(publishableKey); key != "" {
		c.projects.Delete(key)
	}
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, "|")
}
