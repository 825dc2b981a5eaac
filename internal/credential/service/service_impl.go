package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tollwaylabs/tollway/internal/cache"
	"github.com/tollwaylabs/tollway/internal/clock"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	secretKeyBytes      = 32
	publishableKeyBytes = 16
	rotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  credentialdomain.Repository
	Cache cache.CredentialResolverCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  credentialdomain.Repository
	cache cache.CredentialResolverCache
}

func New(p Params) credentialdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("credential.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Resolve(ctx context.Context, secretHash string) (*credentialdomain.Identity, error) {
	secretHash = strings.TrimSpace(secretHash)
	if secretHash == "" {
		return nil, nil
	}

	now := s.clock.Now()
	if cached, ok := s.cache.GetBySecretHash(secretHash); ok {
		if cached.Usable(now) {
			return cached.Identity(), nil
		}
		s.cache.DeleteBySecretHash(secretHash)
	}

	credential, err := s.repo.FindBySecretHash(ctx, s.db, secretHash)
	if err != nil {
		return nil, err
	}
	if credential == nil || !credential.Usable(now) {
		return nil, nil
	}

	s.cache.SetBySecretHash(secretHash, credential)
	return credential.Identity(), nil
}

func (s *Service) ResolveTenantID(ctx context.Context, publishableKey string) (snowflake.ID, bool, error) {
	publishableKey = strings.TrimSpace(publishableKey)
	if publishableKey == "" {
		return 0, false, nil
	}

	now := s.clock.Now()
	if cached, ok := s.cache.GetByPublishableKey(publishableKey); ok {
		if cached.Usable(now) {
			return cached.TenantID, true, nil
		}
		s.cache.DeleteByPublishableKey(publishableKey)
	}

	credential, err := s.repo.FindByPublishableKey(ctx, s.db, publishableKey)
	if err != nil {
		return 0, false, err
	}
	if credential == nil || !credential.Usable(now) {
		return 0, false, nil
	}

	s.cache.SetByPublishableKey(publishableKey, credential)
	return credential.TenantID, true, nil
}

func (s *Service) Provision(ctx context.Context, req credentialdomain.ProvisionRequest) (*credentialdomain.ProvisionResponse, error) {
	if req.TenantID == 0 {
		return nil, credentialdomain.ErrInvalidTenant
	}
	mode, err := normalizeMode(req.Mode)
	if err != nil {
		return nil, err
	}

	credential, resp, err := s.mint(req.TenantID, mode, strings.TrimSpace(req.ProjectType), req.Scopes, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, credential); err != nil {
		return nil, err
	}

	s.log.Info("credential provisioned",
		zap.String("tenant_id", credential.TenantID.String()),
		zap.String("publishable_key", credential.PublishableKey),
		zap.String("mode", string(credential.Mode)),
	)
	return resp, nil
}

func (s *Service) Rotate(ctx context.Context, tenantID snowflake.ID, publishableKey string) (*credentialdomain.ProvisionResponse, error) {
	if tenantID == 0 {
		return nil, credentialdomain.ErrInvalidTenant
	}
	publishableKey = strings.TrimSpace(publishableKey)
	if publishableKey == "" {
		return nil, credentialdomain.ErrNotFound
	}

	now := s.clock.Now()
	var resp *credentialdomain.ProvisionResponse
	var oldSecretHash string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByPublishableKey(ctx, tx, publishableKey)
		if err != nil {
			return err
		}
		if current == nil || current.TenantID != tenantID || !current.Usable(now) {
			return credentialdomain.ErrNotFound
		}
		oldSecretHash = current.SecretHash

		if err := s.repo.ExpireAt(ctx, tx, current.ID, now.Add(rotationGracePeriod), now); err != nil {
			return err
		}

		next, minted, err := s.mint(tenantID, current.Mode, current.ProjectType, current.Scopes, &current.ID)
		if err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		resp = minted
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The old pair stays resolvable through its grace window; drop the cached
	// rows so the new expiry is picked up on the next lookup.
	s.cache.DeleteByPublishableKey(publishableKey)
	s.cache.DeleteBySecretHash(oldSecretHash)

	s.log.Info("credential rotated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("old_publishable_key", publishableKey),
		zap.String("new_publishable_key", resp.PublishableKey),
	)
	return resp, nil
}

func (s *Service) mint(tenantID snowflake.ID, mode credentialdomain.Mode, projectType string, scopes []string, rotatedFrom *snowflake.ID) (*credentialdomain.Credential, *credentialdomain.ProvisionResponse, error) {
	publishable, err := randomKey("pk", mode, publishableKeyBytes)
	if err != nil {
		return nil, nil, err
	}
	secret, err := randomKey("sk", mode, secretKeyBytes)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	credential := &credentialdomain.Credential{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		PublishableKey: publishable,
		SecretHash:     credentialdomain.HashSecret(secret),
		Mode:           mode,
		ProjectType:    projectType,
		Scopes:         append([]string(nil), scopes...),
		IsActive:       true,
		RotatedFromID:  rotatedFrom,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	resp := &credentialdomain.ProvisionResponse{
		PublishableKey: publishable,
		SecretKey:      secret,
		Mode:           mode,
	}
	return credential, resp, nil
}

func randomKey(kind string, mode credentialdomain.Mode, bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s", kind, mode, hex.EncodeToString(buf)), nil
}

func normalizeMode(mode credentialdomain.Mode) (credentialdomain.Mode, error) {
	switch credentialdomain.Mode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case credentialdomain.ModeTest:
		return credentialdomain.ModeTest, nil
	case credentialdomain.ModeLive:
		return credentialdomain.ModeLive, nil
	default:
		return "", credentialdomain.ErrInvalidMode
	}
}
