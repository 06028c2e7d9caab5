package handler

import (
	"context"
	"net/http"
	"strings"

	"location-dedupe/internal/match"
	"location-dedupe/internal/report"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// DuplicatesHandler serves the dry-run report for review.
type DuplicatesHandler struct {
	service DedupeService
}

// DedupeService interface for dependency injection
type DedupeService interface {
	Analyze(context.Context) (*report.Report, error)
}

// NewDuplicatesHandler creates a new duplicates handler
func NewDuplicatesHandler(svc DedupeService) *DuplicatesHandler {
	return &DuplicatesHandler{service: svc}
}

// ListDuplicates handles GET /duplicates requests. It never merges.
func (h *DuplicatesHandler) ListDuplicates(c *gin.Context) {
	category := match.Category(strings.ToUpper(strings.TrimSpace(c.Query("category"))))
	switch category {
	case "", match.HighConfidence, match.MediumConfidence, match.CoordinateError, match.NameCollision:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	rep, err := h.service.Analyze(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("analyze failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, rep.Filter(category))
}
