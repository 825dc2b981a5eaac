package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/tollwaylabs/tollway/internal/usage/domain"
)

type usageResponse struct {
	Count int64             `json:"count"`
	Limit usagedomain.Limit `json:"limit"`
	Plan  string            `json:"plan"`
}

// limitExceededResponse is the rejection body metered SDKs key off. The
// top-level "error" string keeps it distinguishable from the authz envelope,
// where "error" is an object.
type limitExceededResponse struct {
	Error      string            `json:"error"`
	UsageCount int64             `json:"usageCount"`
	Limit      usagedomain.Limit `json:"limit"`
}

// TrackUsage consumes one unit of quota for the authenticated end user.
func (s *Server) TrackUsage(c *gin.Context) {
	auth := authFromContext(c)
	if auth == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.usageSvc.Track(c.Request.Context(), usagedomain.TrackRequest{
		TenantID: auth.TenantID,
		UserID:   auth.UserID,
		Plan:     auth.Plan,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.Accepted {
		c.JSON(http.StatusForbidden, limitExceededResponse{
			Error:      "Tier limit reached",
			UsageCount: result.UsageCount,
			Limit:      result.Limit,
		})
		return
	}

	c.JSON(http.StatusOK, usageResponse{
		Count: result.UsageCount,
		Limit: result.Limit,
		Plan:  result.Plan,
	})
}

// ReadUsage reports the current period without consuming quota. Callers at
// their cap still get a 200; only tracking rejects.
func (s *Server) ReadUsage(c *gin.Context) {
	auth := authFromContext(c)
	if auth == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.usageSvc.Check(c.Request.Context(), usagedomain.TrackRequest{
		TenantID: auth.TenantID,
		UserID:   auth.UserID,
		Plan:     auth.Plan,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, usageResponse{
		Count: result.UsageCount,
		Limit: result.Limit,
		Plan:  result.Plan,
	})
}
