package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tollwaylabs/tollway/internal/config"
	identitydomain "github.com/tollwaylabs/tollway/internal/identity/domain"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

func TestVerifySessionTokenExtractsMetadata(t *testing.T) {
	svc := newTestService(t, "https://id.example.com", "")
	token := signToken(t, jwt.MapClaims{
		"iss": "https://id.example.com",
		"sub": "user_123",
		"exp": time.Now().Add(time.Hour).Unix(),
		"metadata": map[string]any{
			"plan":            "growth",
			"publishable_key": "pk_test_abc",
		},
	}, testSecret)

	session, err := svc.VerifySessionToken(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if session.Subject != "user_123" {
		t.Fatalf("subject: %q", session.Subject)
	}
	if session.Plan != "growth" {
		t.Fatalf("plan must come from token metadata, got %q", session.Plan)
	}
	if session.PublishableKey != "pk_test_abc" {
		t.Fatalf("publishable key claim: %q", session.PublishableKey)
	}
}

func TestVerifySessionTokenRejections(t *testing.T) {
	svc := newTestService(t, "https://id.example.com", "")

	expired := signToken(t, jwt.MapClaims{
		"iss": "https://id.example.com",
		"sub": "user_123",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}, testSecret)
	if _, err := svc.VerifySessionToken(context.Background(), expired); !errors.Is(err, identitydomain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	wrongIssuer := signToken(t, jwt.MapClaims{
		"iss": "https://evil.example.com",
		"sub": "user_123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if _, err := svc.VerifySessionToken(context.Background(), wrongIssuer); !errors.Is(err, identitydomain.ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}

	forged := signToken(t, jwt.MapClaims{
		"iss": "https://id.example.com",
		"sub": "user_123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, "other-secret")
	if _, err := svc.VerifySessionToken(context.Background(), forged); !errors.Is(err, identitydomain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	noSubject := signToken(t, jwt.MapClaims{
		"iss": "https://id.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if _, err := svc.VerifySessionToken(context.Background(), noSubject); !errors.Is(err, identitydomain.ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}

	if _, err := svc.VerifySessionToken(context.Background(), ""); !errors.Is(err, identitydomain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for blank token, got %v", err)
	}
}

func TestUpdateUserMetadata(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := newTestService(t, "", server.URL)
	err := svc.UpdateUserMetadata(context.Background(), "user_123", map[string]any{"plan": "starter"})
	if err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("method: %s", gotMethod)
	}
	if gotPath != "/v1/users/user_123/metadata" {
		t.Fatalf("path: %s", gotPath)
	}
	if gotAuth != "Bearer id-api-key" {
		t.Fatalf("auth header: %s", gotAuth)
	}
	public, ok := gotBody["public_metadata"].(map[string]any)
	if !ok || public["plan"] != "starter" {
		t.Fatalf("body: %+v", gotBody)
	}
}

func TestUpdateUserMetadataUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "user not found"})
	}))
	defer server.Close()

	svc := newTestService(t, "", server.URL)
	err := svc.UpdateUserMetadata(context.Background(), "user_missing", map[string]any{"plan": "starter"})
	if !errors.Is(err, identitydomain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func newTestService(t *testing.T, issuer, baseURL string) identitydomain.Service {
	t.Helper()
	cfg := config.Config{}
	cfg.Identity.JWTSecret = testSecret
	cfg.Identity.Issuer = issuer
	cfg.Identity.BaseURL = baseURL
	cfg.Identity.APIKey = "id-api-key"
	return New(Params{Config: cfg, Log: zap.NewNop()})
}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
