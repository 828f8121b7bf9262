package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rabbitdeck/backend/internal/audit"
	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/service"
)

// AuditHandler read-only audit API plus the manual retention trigger. The
// router mounts every route here behind the administrator gate; no mutation
// routes exist for individual records, so PUT/DELETE/PATCH under
// /api/audits/{id} fall through to gin's 404.
type AuditHandler struct {
	queryService *service.AuditQueryService
	sweeper      *audit.Sweeper
	auditCfg     config.AuditConfig
}

// NewAuditHandler creates the audit handler
func NewAuditHandler(queryService *service.AuditQueryService, sweeper *audit.Sweeper, cfg *config.Config) *AuditHandler {
	return &AuditHandler{
		queryService: queryService,
		sweeper:      sweeper,
		auditCfg:     cfg.Audit,
	}
}

// GetAudits returns a filtered, paginated page of audit records. With
// auditing switched off nothing is being written, so instead of serving an
// empty page that looks like "no activity" the endpoint reports the disabled
// state with its own error kind.
func (h *AuditHandler) GetAudits(c *gin.Context) {
	if !h.auditCfg.Enabled {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "audit_disabled",
			Message: "audit logging is disabled on this deployment",
		})
		return
	}

	params, ok := h.parseQueryParams(c)
	if !ok {
		return
	}

	page, err := h.queryService.Query(c.Request.Context(), params)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetOperationTypes lists the closed operation type enum (for filter UIs)
func (h *AuditHandler) GetOperationTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"operationTypes": domain.OperationTypes(),
		"resourceTypes":  domain.ResourceTypes(),
		"statuses":       []domain.AuditStatus{domain.StatusSuccess, domain.StatusFailure, domain.StatusPartial},
	})
}

// GetStatus reports whether auditing is enabled, so the frontend can render
// a disabled-feature state instead of an empty table
func (h *AuditHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled":         h.auditCfg.Enabled,
		"asyncProcessing": h.auditCfg.AsyncProcessing,
		"retentionDays":   h.auditCfg.RetentionDays,
	})
}

// RunRetention triggers one retention sweep outside the schedule
func (h *AuditHandler) RunRetention(c *gin.Context) {
	deleted, err := h.sweeper.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// parseQueryParams parses and type-checks the query string. Errors short-
// circuit with a 400 naming the offending field; enum and range validation
// happens in the query service.
func (h *AuditHandler) parseQueryParams(c *gin.Context) (service.AuditQueryParams, bool) {
	params := service.AuditQueryParams{
		Username:      c.Query("username"),
		ClusterName:   c.Query("clusterName"),
		OperationType: c.Query("operationType"),
		ResourceName:  c.Query("resourceName"),
		ResourceTypes: c.QueryArray("resourceType"),
		Status:        c.Query("status"),
		SortBy:        c.Query("sortBy"),
		SortDirection: c.Query("sortDirection"),
	}

	var ok bool
	if params.Page, ok = h.intQuery(c, "page", 0); !ok {
		return params, false
	}
	if params.PageSize, ok = h.intQuery(c, "pageSize", 0); !ok {
		return params, false
	}

	if startStr := c.Query("startTime"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			h.badField(c, "startTime", "startTime must be an ISO-8601 timestamp")
			return params, false
		}
		params.StartTime = &start
	}
	if endStr := c.Query("endTime"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			h.badField(c, "endTime", "endTime must be an ISO-8601 timestamp")
			return params, false
		}
		params.EndTime = &end
	}

	return params, true
}

func (h *AuditHandler) intQuery(c *gin.Context, name string, defaultValue int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		h.badField(c, name, name+" must be an integer")
		return 0, false
	}
	return value, true
}

func (h *AuditHandler) badField(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_failed",
		Message: message,
		Field:   field,
	})
}
