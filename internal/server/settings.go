package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/tollwaylabs/tollway/internal/tenant/domain"
)

type paymentTokenRequest struct {
	Mode        string `json:"mode"`
	AccessToken string `json:"access_token"`
}

type paymentTokenResponse struct {
	Mode string `json:"mode"`
}

// SavePaymentToken stores a tenant-scoped processor access token. Line-item
// fetches for one-time purchases use it instead of the platform account
// token. The token lands in tenant metadata and is never echoed back.
func (s *Server) SavePaymentToken(c *gin.Context) {
	auth := authFromContext(c)
	if auth == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req paymentTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	key := tenantdomain.MetadataPaymentTokenTest
	switch mode {
	case "", "test":
		mode = "test"
	case "live":
		key = tenantdomain.MetadataPaymentTokenLive
	default:
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tenantSvc.SetMetadataKey(c.Request.Context(), auth.TenantID, key, token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentTokenResponse{Mode: mode})
}
