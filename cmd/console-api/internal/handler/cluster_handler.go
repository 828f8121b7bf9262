package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/middleware"
	"github.com/rabbitdeck/backend/internal/rabbit"
	"github.com/rabbitdeck/backend/internal/service"
)

// ClusterHandler cluster registry, resource browsing and write operations
type ClusterHandler struct {
	clusterService *service.ClusterService
	opsService     *service.ClusterOpsService
	userService    *service.UserService
}

// NewClusterHandler creates the cluster handler
func NewClusterHandler(
	clusterService *service.ClusterService,
	opsService *service.ClusterOpsService,
	userService *service.UserService,
) *ClusterHandler {
	return &ClusterHandler{
		clusterService: clusterService,
		opsService:     opsService,
		userService:    userService,
	}
}

// principal loads the full user (with cluster assignments) for the request
func (h *ClusterHandler) principal(c *gin.Context) (*domain.User, bool) {
	claims := middleware.PrincipalFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return nil, false
	}
	user, err := h.userService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Unknown user"})
		return nil, false
	}
	return user, true
}

func (h *ClusterHandler) clusterID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("cluster_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "cluster_id must be a valid UUID",
			Field:   "cluster_id",
		})
		return uuid.Nil, false
	}
	return id, true
}

// --- cluster registry (administrators only) ---

// ListClusters lists registered clusters
func (h *ClusterHandler) ListClusters(c *gin.Context) {
	clusters, err := h.clusterService.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "total": len(clusters)})
}

type createClusterRequest struct {
	Name        string `json:"name" binding:"required"`
	ApiUrl      string `json:"api_url" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Description string `json:"description"`
}

// CreateCluster registers a cluster connection
func (h *ClusterHandler) CreateCluster(c *gin.Context) {
	var req createClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "name, api_url, username and password are required",
		})
		return
	}

	cluster, err := h.clusterService.Create(c.Request.Context(), req.Name, req.ApiUrl, req.Username, req.Password, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cluster)
}

// DeleteCluster removes a cluster connection (refused while audit history
// references it)
func (h *ClusterHandler) DeleteCluster(c *gin.Context) {
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	if err := h.clusterService.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- resource browsing (pass-through reads) ---

// GetOverview proxies the cluster overview
func (h *ClusterHandler) GetOverview(c *gin.Context) {
	h.browse(c, h.opsService.Overview)
}

// GetConnections proxies the connection list
func (h *ClusterHandler) GetConnections(c *gin.Context) {
	h.browseList(c, h.opsService.ListConnections)
}

// GetChannels proxies the channel list
func (h *ClusterHandler) GetChannels(c *gin.Context) {
	h.browseList(c, h.opsService.ListChannels)
}

// GetExchanges proxies the exchange list
func (h *ClusterHandler) GetExchanges(c *gin.Context) {
	h.browseList(c, h.opsService.ListExchanges)
}

// GetQueues proxies the queue list
func (h *ClusterHandler) GetQueues(c *gin.Context) {
	h.browseList(c, h.opsService.ListQueues)
}

func (h *ClusterHandler) browse(c *gin.Context, fn func(context.Context, *domain.User, uuid.UUID) (map[string]interface{}, error)) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), user, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ClusterHandler) browseList(c *gin.Context, fn func(context.Context, *domain.User, uuid.UUID) ([]map[string]interface{}, error)) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	items, err := fn(c.Request.Context(), user, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if items == nil {
		items = []map[string]interface{}{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// --- write operations (audited) ---

type exchangeRequest struct {
	Vhost      string                 `json:"vhost" binding:"required"`
	Name       string                 `json:"name" binding:"required"`
	Type       string                 `json:"type"`
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete"`
	Internal   bool                   `json:"internal"`
	Arguments  map[string]interface{} `json:"arguments"`
}

// CreateExchange declares an exchange
func (h *ClusterHandler) CreateExchange(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost and name are required",
		})
		return
	}
	if req.Type == "" {
		req.Type = "direct"
	}

	err := h.opsService.CreateExchange(c.Request.Context(), user, id, req.Vhost, req.Name, rabbit.ExchangeSettings{
		Type:       req.Type,
		Durable:    req.Durable,
		AutoDelete: req.AutoDelete,
		Internal:   req.Internal,
		Arguments:  req.Arguments,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteExchange removes an exchange
func (h *ClusterHandler) DeleteExchange(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	vhost, name := c.Query("vhost"), c.Param("name")
	if vhost == "" {
		vhost = "/"
	}
	if err := h.opsService.DeleteExchange(c.Request.Context(), user, id, vhost, name); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type queueRequest struct {
	Vhost      string                 `json:"vhost" binding:"required"`
	Name       string                 `json:"name" binding:"required"`
	Durable    bool                   `json:"durable"`
	AutoDelete bool                   `json:"auto_delete"`
	Arguments  map[string]interface{} `json:"arguments"`
}

// CreateQueue declares a queue
func (h *ClusterHandler) CreateQueue(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost and name are required",
		})
		return
	}

	err := h.opsService.CreateQueue(c.Request.Context(), user, id, req.Vhost, req.Name, rabbit.QueueSettings{
		Durable:    req.Durable,
		AutoDelete: req.AutoDelete,
		Arguments:  req.Arguments,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

// DeleteQueue removes a queue
func (h *ClusterHandler) DeleteQueue(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	vhost := c.Query("vhost")
	if vhost == "" {
		vhost = "/"
	}
	if err := h.opsService.DeleteQueue(c.Request.Context(), user, id, vhost, c.Param("name")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PurgeQueue drops all ready messages from a queue
func (h *ClusterHandler) PurgeQueue(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	vhost := c.Query("vhost")
	if vhost == "" {
		vhost = "/"
	}
	if err := h.opsService.PurgeQueue(c.Request.Context(), user, id, vhost, c.Param("name")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bindingRequest struct {
	Vhost       string                 `json:"vhost" binding:"required"`
	Source      string                 `json:"source" binding:"required"`
	Destination string                 `json:"destination" binding:"required"`
	DestIsQueue bool                   `json:"destination_is_queue"`
	RoutingKey  string                 `json:"routing_key"`
	Arguments   map[string]interface{} `json:"arguments"`
}

// CreateBinding binds a source exchange to a destination exchange or queue
func (h *ClusterHandler) CreateBinding(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req bindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost, source and destination are required",
		})
		return
	}

	err := h.opsService.CreateBinding(c.Request.Context(), user, id,
		req.Vhost, req.Source, req.Destination, req.DestIsQueue, req.RoutingKey, req.Arguments)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteBindingRequest struct {
	Vhost         string `json:"vhost" binding:"required"`
	Source        string `json:"source" binding:"required"`
	Destination   string `json:"destination" binding:"required"`
	DestIsQueue   bool   `json:"destination_is_queue"`
	PropertiesKey string `json:"properties_key" binding:"required"`
}

// DeleteBinding removes one binding
func (h *ClusterHandler) DeleteBinding(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req deleteBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost, source, destination and properties_key are required",
		})
		return
	}

	err := h.opsService.DeleteBinding(c.Request.Context(), user, id,
		req.Vhost, req.Source, req.Destination, req.DestIsQueue, req.PropertiesKey)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type publishRequest struct {
	Vhost      string                 `json:"vhost" binding:"required"`
	Exchange   string                 `json:"exchange"`
	Queue      string                 `json:"queue"`
	RoutingKey string                 `json:"routing_key"`
	Payload    string                 `json:"payload" binding:"required"`
	Properties map[string]interface{} `json:"properties"`
}

// PublishMessage publishes one message to an exchange or directly to a queue
func (h *ClusterHandler) PublishMessage(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost and payload are required",
		})
		return
	}
	if (req.Exchange == "") == (req.Queue == "") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "exactly one of exchange or queue must be set",
			Field:   "exchange",
		})
		return
	}

	var routed bool
	var err error
	if req.Exchange != "" {
		routed, err = h.opsService.PublishToExchange(c.Request.Context(), user, id,
			req.Vhost, req.Exchange, req.RoutingKey, req.Payload, req.Properties)
	} else {
		routed, err = h.opsService.PublishToQueue(c.Request.Context(), user, id,
			req.Vhost, req.Queue, req.Payload, req.Properties)
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routed": routed})
}

type moveMessagesRequest struct {
	Vhost       string `json:"vhost" binding:"required"`
	Source      string `json:"source" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	MaxCount    int    `json:"max_count"`
}

// MoveMessages moves messages between queues
func (h *ClusterHandler) MoveMessages(c *gin.Context) {
	user, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req moveMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "vhost, source and destination are required",
		})
		return
	}
	if req.MaxCount <= 0 {
		req.MaxCount = 1000
	}

	moved, err := h.opsService.MoveMessages(c.Request.Context(), user, id,
		req.Vhost, req.Source, req.Destination, req.MaxCount)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}
