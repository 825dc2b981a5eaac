package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	authndomain "github.com/tollwaylabs/tollway/internal/authn/domain"
	obscontext "github.com/tollwaylabs/tollway/internal/observability/context"
	"github.com/tollwaylabs/tollway/internal/observability/logger"
	obsmetrics "github.com/tollwaylabs/tollway/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	headerSessionToken   = "X-Session-Token"
	headerPublishableKey = "X-Publishable-Key"
	headerUserPlan       = "X-User-Plan"

	ctxAuthKey = "tollway.auth"

	rateLimitReasonTenantRate = "tenant-rate"
)

// TenantAuth resolves the caller's credential and stashes the authorized
// identity on the request. Everything behind it can assume a tenant.
func (s *Server) TenantAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if authorization == "" {
			// Browser callers send the publishable key bare, without the
			// bearer scheme.
			if pk := strings.TrimSpace(c.GetHeader(headerPublishableKey)); pk != "" {
				authorization = "Bearer " + pk
			}
		}

		auth, err := s.authSvc.Authorize(c.Request.Context(), authndomain.Request{
			Authorization: authorization,
			SessionToken:  c.GetHeader(headerSessionToken),
			PlanHeader:    c.GetHeader(headerUserPlan),
			Method:        c.Request.Method,
			Path:          normalizeRoutePath(c),
		})
		if err != nil {
			s.recordAuthAttempt(c, "credential", authOutcome(err))
			AbortWithError(c, err)
			return
		}

		s.recordAuthAttempt(c, string(auth.KeyKind), "ok")
		c.Set(ctxAuthKey, auth)

		ctx := obscontext.WithTenantID(c.Request.Context(), auth.TenantID.String())
		actorID := auth.UserID
		if actorID == "" {
			actorID = auth.PublishableKey
		}
		ctx = obscontext.WithActor(ctx, string(auth.KeyKind), actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UsageRateLimit sits between auth and the tracking handler. A deny is a 429
// with Retry-After; limiter outages fail open so billing traffic keeps
// flowing.
func (s *Server) UsageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		auth := authFromContext(c)
		if auth == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRoutePath(c)

		res, err := s.usageLimiter.Allow(ctx, auth.TenantID)
		if err != nil {
			logger.FromContext(ctx).Warn("usage rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("usage rate limit exceeded",
				zap.String("tenant_id", auth.TenantID.String()),
				zap.String("endpoint", endpoint),
			)
			recordRateLimitDenied(c, endpoint, auth.TenantID.String(), rateLimitReasonTenantRate, s.obsMetrics)

			c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonTenantRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		recordRateLimitAllowed(c, endpoint, auth.TenantID.String(), s.obsMetrics)
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func authFromContext(c *gin.Context) *authndomain.Auth {
	v, ok := c.Get(ctxAuthKey)
	if !ok {
		return nil
	}
	auth, ok := v.(*authndomain.Auth)
	if !ok {
		return nil
	}
	return auth
}

func authOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errorsIsForbidden(err):
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

func errorsIsForbidden(err error) bool {
	_, payload := mapError(err)
	return payload.Type == "forbidden"
}

func normalizeRoutePath(c *gin.Context) string {
	path := strings.TrimSpace(c.FullPath())
	if path == "" {
		path = strings.TrimSpace(c.Request.URL.Path)
	}
	if path == "" {
		path = "unknown"
	}
	return path
}

func (s *Server) recordAuthAttempt(c *gin.Context, kind, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordAuthAttempt(c.Request.Context(), kind, outcome)
}

func recordRateLimitAllowed(c *gin.Context, endpoint, tenantID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(c.Request.Context(), tenantID, endpoint)
}

func recordRateLimitDenied(c *gin.Context, endpoint, tenantID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(c.Request.Context(), tenantID, endpoint, reason)
}
