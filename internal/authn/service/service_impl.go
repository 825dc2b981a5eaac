package service

import (
	"context"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	authndomain "github.com/tollwaylabs/tollway/internal/authn/domain"
	"github.com/tollwaylabs/tollway/internal/config"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	identitydomain "github.com/tollwaylabs/tollway/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config      config.Config
	Log         *zap.Logger
	Credentials credentialdomain.Service
	Identity    identitydomain.Service
	Enforcer    *casbin.SyncedEnforcer
}

type Service struct {
	allowPlanHeader bool
	log             *zap.Logger
	credentials     credentialdomain.Service
	identity        identitydomain.Service
	enforcer        *casbin.SyncedEnforcer
}

func New(p Params) authndomain.Service {
	return &Service{
		allowPlanHeader: p.Config.Auth.AllowPlanHeader,
		log:             p.Log.Named("authn.service"),
		credentials:     p.Credentials,
		identity:        p.Identity,
		enforcer:        p.Enforcer,
	}
}

func (s *Service) Authorize(ctx context.Context, req authndomain.Request) (*authndomain.Auth, error) {
	key, err := bearerToken(req.Authorization)
	if err != nil {
		return nil, err
	}

	auth, err := s.verifyCredential(ctx, key)
	if err != nil {
		return nil, err
	}

	allowed, err := s.enforcer.Enforce(string(auth.KeyKind), req.Path, strings.ToUpper(strings.TrimSpace(req.Method)))
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, authndomain.ErrForbidden
	}

	session, err := s.verifySession(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}
	if session != nil {
		// A token minted for another project must never unlock this one.
		if session.PublishableKey != "" && session.PublishableKey != auth.PublishableKey {
			return nil, authndomain.ErrForbidden
		}
		auth.UserID = session.Subject
		auth.Plan = session.Plan
	}

	if auth.Plan == "" && s.allowPlanHeader {
		if plan := strings.TrimSpace(req.PlanHeader); plan != "" {
			auth.Plan = plan
			s.log.Warn("plan resolved from deprecated header",
				zap.String("tenant_id", auth.TenantID.String()),
				zap.String("plan", plan),
			)
		}
	}

	return auth, nil
}

func (s *Service) verifyCredential(ctx context.Context, key string) (*authndomain.Auth, error) {
	switch {
	case strings.HasPrefix(key, "sk_"):
		identity, err := s.credentials.Resolve(ctx, credentialdomain.HashSecret(key))
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, authndomain.ErrUnauthenticated
		}
		return &authndomain.Auth{
			TenantID:       identity.TenantID,
			PublishableKey: identity.PublishableKey,
			Mode:           identity.Mode,
			KeyKind:        authndomain.KeySecret,
			Scopes:         identity.Scopes,
		}, nil

	case strings.HasPrefix(key, "pk_"):
		tenantID, ok, err := s.credentials.ResolveTenantID(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, authndomain.ErrUnauthenticated
		}
		return &authndomain.Auth{
			TenantID:       tenantID,
			PublishableKey: key,
			Mode:           credentialdomain.ModeFromKey(key),
			KeyKind:        authndomain.KeyPublishable,
		}, nil

	default:
		return nil, authndomain.ErrUnauthenticated
	}
}

func (s *Service) verifySession(ctx context.Context, token string) (*identitydomain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	session, err := s.identity.VerifySessionToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, identitydomain.ErrInvalidToken),
			errors.Is(err, identitydomain.ErrExpiredToken),
			errors.Is(err, identitydomain.ErrInvalidIssuer),
			errors.Is(err, identitydomain.ErrMissingSubject):
			return nil, authndomain.ErrUnauthenticated
		default:
			return nil, err
		}
	}
	return session, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", authndomain.ErrUnauthenticated
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", authndomain.ErrUnauthenticated
	}
	return parts[1], nil
}
