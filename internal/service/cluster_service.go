package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrClusterInUse returned when deleting a cluster that audit history still
// references. The restrict-on-delete constraint exists precisely so history
// cannot be orphaned; the API surfaces this as a conflict.
var ErrClusterInUse = errors.New("cluster is referenced by audit records")

// ClusterService manages the registry of cluster connections
type ClusterService struct {
	repo   repository.ClusterRepository
	logger *zap.Logger
}

// NewClusterService creates the cluster service
func NewClusterService(repo repository.ClusterRepository, logger *zap.Logger) *ClusterService {
	return &ClusterService{repo: repo, logger: logger}
}

// List returns all registered clusters
func (s *ClusterService) List(ctx context.Context) ([]*domain.Cluster, error) {
	return s.repo.FindAll(ctx)
}

// Create registers a new cluster connection
func (s *ClusterService) Create(ctx context.Context, name, apiURL, username, password, description string) (*domain.Cluster, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if apiURL == "" {
		return nil, &ValidationError{Field: "apiUrl", Message: "apiUrl is required"}
	}

	cluster := &domain.Cluster{
		ID:          uuid.New(),
		Name:        name,
		ApiUrl:      apiURL,
		Username:    username,
		Password:    password,
		Description: description,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, cluster); err != nil {
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	return cluster, nil
}

// Delete removes a cluster connection. Clusters referenced by audit records
// cannot be deleted.
func (s *ClusterService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClusterNotFound
		}
		return fmt.Errorf("failed to load cluster: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return ErrClusterInUse
		}
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	return nil
}
