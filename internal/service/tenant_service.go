package service

import (
	"context"
	"fmt"

	"location-dedupe/internal/models"
)

// TenantService looks up the dependent records a reviewer checks before
// approving a merge.
type TenantService struct {
	repo TenantRepository
}

// TenantRepository interface for dependency injection
type TenantRepository interface {
	TenantsByLocation(ctx context.Context, locationID string) ([]models.Tenant, error)
}

// NewTenantService creates a new tenant service
func NewTenantService(repo TenantRepository) *TenantService {
	return &TenantService{repo: repo}
}

// Tenants lists the tenants of one location.
func (s *TenantService) Tenants(ctx context.Context, locationID string) ([]models.Tenant, error) {
	if locationID == "" {
		return nil, fmt.Errorf("service: location id cannot be empty")
	}

	tenants, err := s.repo.TenantsByLocation(ctx, locationID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list tenants: %w", err)
	}

	return tenants, nil
}
