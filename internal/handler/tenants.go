package handler

import (
	"context"
	"net/http"

	"location-dedupe/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TenantsHandler handles tenant lookups
type TenantsHandler struct {
	service TenantService
}

// TenantService interface for dependency injection
type TenantService interface {
	Tenants(context.Context, string) ([]models.Tenant, error)
}

// NewTenantsHandler creates a new tenants handler
func NewTenantsHandler(svc TenantService) *TenantsHandler {
	return &TenantsHandler{service: svc}
}

// ListTenants handles GET /locations/:id/tenants requests
func (h *TenantsHandler) ListTenants(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing location id"})
		return
	}

	tenants, err := h.service.Tenants(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("location_id", id).Msg("tenant lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, tenants)
}
