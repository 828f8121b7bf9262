package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"gorm.io/gorm"
)

// ClusterRepository managed cluster connection persistence
type ClusterRepository interface {
	Create(ctx context.Context, cluster *domain.Cluster) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Cluster, error)
	FindByName(ctx context.Context, name string) (*domain.Cluster, error)
	FindAll(ctx context.Context) ([]*domain.Cluster, error)
	// Delete removes a cluster connection. It fails with a foreign key
	// violation while audit records still reference the cluster; callers
	// surface that as a conflict rather than cascading history away.
	Delete(ctx context.Context, id uuid.UUID) error
}

type clusterRepository struct {
	db *gorm.DB
}

// NewClusterRepository creates the cluster repository
func NewClusterRepository(db *gorm.DB) ClusterRepository {
	return &clusterRepository{db: db}
}

func (r *clusterRepository) Create(ctx context.Context, cluster *domain.Cluster) error {
	return r.db.WithContext(ctx).Create(cluster).Error
}

func (r *clusterRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Cluster, error) {
	var cluster domain.Cluster
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cluster).Error
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *clusterRepository) FindByName(ctx context.Context, name string) (*domain.Cluster, error) {
	var cluster domain.Cluster
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&cluster).Error
	if err != nil {
		return nil, err
	}
	return &cluster, nil
}

func (r *clusterRepository) FindAll(ctx context.Context) ([]*domain.Cluster, error) {
	var clusters []*domain.Cluster
	err := r.db.WithContext(ctx).Order("name ASC").Find(&clusters).Error
	return clusters, err
}

func (r *clusterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Cluster{}, "id = ?", id).Error
}
