package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
)

type bootstrapRequest struct {
	Name        string   `json:"name"`
	ProjectType string   `json:"project_type"`
	Scopes      []string `json:"scopes"`
}

type bootstrapResponse struct {
	TenantID       string `json:"tenant_id"`
	TenantSlug     string `json:"tenant_slug"`
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	Mode           string `json:"mode"`
}

type rotateRequest struct {
	PublishableKey string `json:"publishable_key"`
}

type rotateResponse struct {
	PublishableKey string `json:"publishable_key"`
	SecretKey      string `json:"secret_key"`
	Mode           string `json:"mode"`
}

// Bootstrap turns an owner's first authenticated visit into a working
// project: tenant row plus a test-mode key pair. The raw secret appears in
// this response and nowhere else.
func (s *Server) Bootstrap(c *gin.Context) {
	token := strings.TrimSpace(c.GetHeader(headerSessionToken))
	if token == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	session, err := s.identitySvc.VerifySessionToken(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req bootstrapRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = session.Subject
	}

	tenant, err := s.tenantSvc.Ensure(c.Request.Context(), tenantdomain.EnsureRequest{
		ExternalID: session.Subject,
		Name:       name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	projectType := strings.TrimSpace(req.ProjectType)
	if projectType == "" {
		projectType = "server"
	}

	pair, err := s.credentialSvc.Provision(c.Request.Context(), credentialdomain.ProvisionRequest{
		TenantID:    tenant.ID,
		Mode:        credentialdomain.ModeTest,
		ProjectType: projectType,
		Scopes:      req.Scopes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bootstrapResponse{
		TenantID:       tenant.ID.String(),
		TenantSlug:     tenant.Slug,
		PublishableKey: pair.PublishableKey,
		SecretKey:      pair.SecretKey,
		Mode:           string(pair.Mode),
	})
}

// RotateCredential replaces the calling project's key pair. Only secret
// credentials reach this handler; the allow-list keeps publishable keys out.
func (s *Server) RotateCredential(c *gin.Context) {
	auth := authFromContext(c)
	if auth == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	publishableKey := auth.PublishableKey
	if c.Request.ContentLength > 0 {
		var req rotateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if pk := strings.TrimSpace(req.PublishableKey); pk != "" {
			publishableKey = pk
		}
	}

	pair, err := s.credentialSvc.Rotate(c.Request.Context(), auth.TenantID, publishableKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rotateResponse{
		PublishableKey: pair.PublishableKey,
		SecretKey:      pair.SecretKey,
		Mode:           string(pair.Mode),
	})
}
