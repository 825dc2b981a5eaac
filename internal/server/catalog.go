package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/tollwaylabs/tollway/internal/catalog/domain"
)

type catalogResponse struct {
	Tiers []catalogdomain.Tier `json:"tiers"`
}

// ListCatalog returns the tenant's effective tier list, cheapest first.
// Publishable keys may call it: pricing is public surface.
func (s *Server) ListCatalog(c *gin.Context) {
	auth := authFromContext(c)
	if auth == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	tiers, err := s.catalogSvc.Tiers(c.Request.Context(), auth.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, catalogResponse{Tiers: tiers})
}
