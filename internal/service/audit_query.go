package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/repository"
	"go.uber.org/zap"
)

// Page size bounds for audit queries. Out-of-range values are rejected with a
// field error, not clamped.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// AuditQueryParams filter plus pagination/sort, as parsed from the API
// query string. Zero values mean unconstrained (except Page/PageSize).
type AuditQueryParams struct {
	Username      string
	ClusterName   string
	OperationType string
	ResourceName  string
	ResourceTypes []string
	Status        string
	StartTime     *time.Time
	EndTime       *time.Time
	Page          int
	PageSize      int
	SortBy        string
	SortDirection string
}

// AuditPage one page of matching records plus the total matching count
type AuditPage struct {
	Items      []*domain.AuditRecord `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalItems int64                 `json:"totalItems"`
	TotalPages int                   `json:"totalPages"`
}

// AuditQueryService serves filtered, paginated audit record queries to
// administrators. Authorization happens at the API boundary; this service
// assumes the caller was already gated.
type AuditQueryService struct {
	repo   repository.AuditRecordRepository
	logger *zap.Logger
}

// NewAuditQueryService creates the query service
func NewAuditQueryService(repo repository.AuditRecordRepository, logger *zap.Logger) *AuditQueryService {
	return &AuditQueryService{repo: repo, logger: logger}
}

// Query validates the parameters and returns the matching page. Validation
// failures come back as *ValidationError naming the offending field.
func (s *AuditQueryService) Query(ctx context.Context, params AuditQueryParams) (*AuditPage, error) {
	filters, err := s.buildFilters(params)
	if err != nil {
		return nil, err
	}

	records, total, err := s.repo.FindByFilters(ctx, filters)
	if err != nil {
		s.logger.Error("Audit query failed", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	pageSize := filters.Limit
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return &AuditPage{
		Items:      records,
		Page:       params.Page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// buildFilters validates every parameter and maps it onto repository filters.
func (s *AuditQueryService) buildFilters(params AuditQueryParams) (*repository.AuditRecordFilters, error) {
	if params.Page < 0 {
		return nil, &ValidationError{Field: "page", Message: "page must not be negative"}
	}

	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, &ValidationError{
			Field:   "pageSize",
			Message: fmt.Sprintf("pageSize must be between 1 and %d", MaxPageSize),
		}
	}

	filters := &repository.AuditRecordFilters{
		Limit:    pageSize,
		Offset:   params.Page * pageSize,
		SortBy:   "timestamp",
		SortDesc: true,
	}

	if params.SortBy != "" {
		if !isSortableField(params.SortBy) {
			return nil, &ValidationError{Field: "sortBy", Message: "unknown sort field: " + params.SortBy}
		}
		filters.SortBy = params.SortBy
	}
	switch params.SortDirection {
	case "", "desc":
		filters.SortDesc = true
	case "asc":
		filters.SortDesc = false
	default:
		return nil, &ValidationError{Field: "sortDirection", Message: "sortDirection must be asc or desc"}
	}

	if params.Username != "" {
		username := params.Username
		filters.Username = &username
	}
	if params.ClusterName != "" {
		clusterName := params.ClusterName
		filters.ClusterName = &clusterName
	}
	if params.ResourceName != "" {
		resourceName := params.ResourceName
		filters.ResourceName = &resourceName
	}

	if params.OperationType != "" {
		opType := domain.OperationType(params.OperationType)
		if !opType.Valid() {
			return nil, &ValidationError{Field: "operationType", Message: "unknown operation type: " + params.OperationType}
		}
		filters.OperationType = &opType
	}

	if params.Status != "" {
		status := domain.AuditStatus(params.Status)
		if !status.Valid() {
			return nil, &ValidationError{Field: "status", Message: "unknown status: " + params.Status}
		}
		filters.Status = &status
	}

	for _, rt := range params.ResourceTypes {
		if !domain.ValidResourceType(rt) {
			return nil, &ValidationError{Field: "resourceType", Message: "unknown resource type: " + rt}
		}
	}
	filters.ResourceTypes = params.ResourceTypes

	if params.StartTime != nil && params.EndTime != nil && params.StartTime.After(*params.EndTime) {
		return nil, &ValidationError{Field: "dateRange", Message: "startTime must not be after endTime"}
	}
	filters.StartTime = params.StartTime
	filters.EndTime = params.EndTime

	return filters, nil
}

func isSortableField(field string) bool {
	for _, known := range repository.SortableFields() {
		if field == known {
			return true
		}
	}
	return false
}
