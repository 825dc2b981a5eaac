// Package domain describes the identity-provider integration surface.
package domain

import (
	"context"
	"errors"
	"strings"
)

// Session is a verified user session minted by the identity provider.
// Plan and PublishableKey come from server-set token metadata; clients
// cannot forge them without the signing secret.
type Session struct {
	Subject        string         `json:"subject"`
	PublishableKey string         `json:"publishable_key"`
	Plan           string         `json:"plan"`
	Metadata       map[string]any `json:"metadata"`
}

type Service interface {
	// VerifySessionToken checks signature, expiry and issuer, and extracts
	// the session identity.
	VerifySessionToken(ctx context.Context, token string) (*Session, error)
	// UpdateUserMetadata merges keys into the user's provider-side metadata
	// document. Existing keys not named in the patch are preserved upstream.
	UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) error
}

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrExpiredToken   = errors.New("expired_token")
	ErrInvalidIssuer  = errors.New("invalid_issuer")
	ErrMissingSubject = errors.New("missing_subject")
	ErrNotConfigured  = errors.New("identity_not_configured")
	ErrUpstream       = errors.New("identity_upstream_failed")
)

// MetadataString extracts a string value from token metadata, tolerating
// absent keys.
func MetadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return strings.TrimSpace(s)
}
