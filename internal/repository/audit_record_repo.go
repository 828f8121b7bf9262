package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"gorm.io/gorm"
)

// AuditRecordRepository is the append-only store for audit records. There is
// deliberately no update method: records are immutable once created, and the
// only mutation is the bulk delete used by retention cleanup.
type AuditRecordRepository interface {
	// Create inserts a single record
	Create(ctx context.Context, record *domain.AuditRecord) error

	// CreateBatch inserts a batch of records in one statement
	CreateBatch(ctx context.Context, records []*domain.AuditRecord) error

	// FindByID looks up one record
	FindByID(ctx context.Context, id uuid.UUID) (*domain.AuditRecord, error)

	// FindByFilters returns a sorted page of matching records plus the total
	// count of records matching the filter (not just the page)
	FindByFilters(ctx context.Context, filters *AuditRecordFilters) ([]*domain.AuditRecord, int64, error)

	// DeleteOlderThan deletes at most batchSize records whose business
	// timestamp is strictly older than cutoff and reports how many went.
	// Each call is its own transaction; callers loop until a short batch.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	// CountOlderThan reports how many records are older than cutoff
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRecordFilters query filters; nil/empty fields are unconstrained
type AuditRecordFilters struct {
	Username      *string // substring, case-insensitive
	ClusterName   *string // exact
	OperationType *domain.OperationType
	ResourceName  *string // substring, case-insensitive
	ResourceTypes []string
	Status        *domain.AuditStatus
	StartTime     *time.Time // inclusive
	EndTime       *time.Time // inclusive
	SortBy        string     // one of the sortColumns keys; empty means timestamp
	SortDesc      bool
	Limit         int
	Offset        int
}

// sortColumns maps the API sort fields to columns. Anything outside this map
// falls back to timestamp, so no caller-supplied string ever reaches the SQL.
var sortColumns = map[string]string{
	"timestamp":     "timestamp",
	"username":      "actor_username",
	"clusterName":   "cluster_name",
	"operationType": "operation_type",
	"status":        "status",
}

// SortableFields lists the allowed sortBy values.
func SortableFields() []string {
	return []string{"timestamp", "username", "clusterName", "operationType", "status"}
}

// auditRecordRepository GORM implementation
type auditRecordRepository struct {
	db *gorm.DB
}

// NewAuditRecordRepository creates the audit record repository
func NewAuditRecordRepository(db *gorm.DB) AuditRecordRepository {
	return &auditRecordRepository{db: db}
}

// Create inserts a single record
func (r *auditRecordRepository) Create(ctx context.Context, record *domain.AuditRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// CreateBatch inserts a batch of records
func (r *auditRecordRepository) CreateBatch(ctx context.Context, records []*domain.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(records).Error
}

// FindByID looks up one record
func (r *auditRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.AuditRecord, error) {
	var record domain.AuditRecord
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByFilters returns a sorted page plus the total matching count
func (r *auditRecordRepository) FindByFilters(ctx context.Context, filters *AuditRecordFilters) ([]*domain.AuditRecord, int64, error) {
	var records []*domain.AuditRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.AuditRecord{})

	if filters.Username != nil {
		query = query.Where("actor_username ILIKE ?", "%"+*filters.Username+"%")
	}
	if filters.ClusterName != nil {
		query = query.Where("cluster_name = ?", *filters.ClusterName)
	}
	if filters.OperationType != nil {
		query = query.Where("operation_type = ?", *filters.OperationType)
	}
	if filters.ResourceName != nil {
		query = query.Where("resource_name ILIKE ?", "%"+*filters.ResourceName+"%")
	}
	if len(filters.ResourceTypes) > 0 {
		query = query.Where("resource_type IN ?", filters.ResourceTypes)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filters.SortBy]
	if !ok {
		column = "timestamp"
	}
	direction := "ASC"
	if filters.SortDesc {
		direction = "DESC"
	}
	query = query.Order(column + " " + direction)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	err := query.Find(&records).Error
	return records, total, err
}

// DeleteOlderThan deletes one bounded batch of expired records. The LIMIT
// subquery keeps each delete short so no long-held lock spans the table.
func (r *auditRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`DELETE FROM audit_records
		 WHERE id IN (
		     SELECT id FROM audit_records WHERE timestamp < ? LIMIT ?
		 )`,
		cutoff, batchSize,
	)
	return result.RowsAffected, result.Error
}

// CountOlderThan reports how many records are older than cutoff
func (r *auditRecordRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AuditRecord{}).
		Where("timestamp < ?", cutoff).
		Count(&count).Error
	return count, err
}
