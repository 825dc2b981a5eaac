package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tollwaylabs/tollway/internal/config"
	identitydomain "github.com/tollwaylabs/tollway/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	metadataKeyPlan           = "plan"
	metadataKeyPublishableKey = "publishable_key"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type Service struct {
	secret  []byte
	issuer  string
	baseURL string
	apiKey  string
	log     *zap.Logger
	client  *http.Client
}

func New(p Params) identitydomain.Service {
	return &Service{
		secret:  []byte(p.Config.Identity.JWTSecret),
		issuer:  strings.TrimSpace(p.Config.Identity.Issuer),
		baseURL: strings.TrimRight(strings.TrimSpace(p.Config.Identity.BaseURL), "/"),
		apiKey:  strings.TrimSpace(p.Config.Identity.APIKey),
		log:     p.Log.Named("identity.service"),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

func (s *Service) VerifySessionToken(ctx context.Context, token string) (*identitydomain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, identitydomain.ErrInvalidToken
	}
	if len(s.secret) == 0 {
		return nil, identitydomain.ErrNotConfigured
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, identitydomain.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, identitydomain.ErrExpiredToken
		}
		return nil, identitydomain.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, identitydomain.ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, identitydomain.ErrInvalidIssuer
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, identitydomain.ErrMissingSubject
	}

	return &identitydomain.Session{
		Subject:        subject,
		PublishableKey: identitydomain.MetadataString(claims.Metadata, metadataKeyPublishableKey),
		Plan:           identitydomain.MetadataString(claims.Metadata, metadataKeyPlan),
		Metadata:       claims.Metadata,
	}, nil
}

func (s *Service) UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return identitydomain.ErrMissingSubject
	}
	if s.baseURL == "" || s.apiKey == "" {
		return identitydomain.ErrNotConfigured
	}
	if len(metadata) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"public_metadata": metadata})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/metadata", s.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", identitydomain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var upstreamErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&upstreamErr)
		message := strings.TrimSpace(upstreamErr.Message)
		if message == "" {
			message = strings.TrimSpace(upstreamErr.Error)
		}
		if message == "" {
			message = resp.Status
		}
		s.log.Warn("identity metadata update failed",
			zap.String("user_id", userID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		return fmt.Errorf("%w: %s", identitydomain.ErrUpstream, message)
	}
	return nil
}
