package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitdeck/backend/cmd/console-api/internal/handler"
	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/metrics"
	"github.com/rabbitdeck/backend/internal/middleware"
)

// SetupRouter wires the console API routes
func SetupRouter(
	cfg *config.Config,
	m *metrics.Metrics,
	authn *middleware.Authenticator,
	authHandler *handler.AuthHandler,
	clusterHandler *handler.ClusterHandler,
	auditHandler *handler.AuditHandler,
) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig()))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics(m))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	{
		// Public endpoints
		api.POST("/auth/login", authHandler.Login)

		// Everything below requires a valid token. Client IP and user agent
		// travel down through the request context for audit capture.
		authed := api.Group("")
		authed.Use(authn.Middleware(), middleware.RequestMeta())
		{
			authed.GET("/auth/me", authHandler.Me)

			clusters := authed.Group("/clusters")
			{
				// Resource browsing (pass-through reads, not audited)
				clusters.GET("/:cluster_id/overview", clusterHandler.GetOverview)
				clusters.GET("/:cluster_id/connections", clusterHandler.GetConnections)
				clusters.GET("/:cluster_id/channels", clusterHandler.GetChannels)
				clusters.GET("/:cluster_id/exchanges", clusterHandler.GetExchanges)
				clusters.GET("/:cluster_id/queues", clusterHandler.GetQueues)

				// Write operations, each recorded in the audit trail
				clusters.POST("/:cluster_id/exchanges", clusterHandler.CreateExchange)
				clusters.DELETE("/:cluster_id/exchanges/:name", clusterHandler.DeleteExchange)
				clusters.POST("/:cluster_id/queues", clusterHandler.CreateQueue)
				clusters.DELETE("/:cluster_id/queues/:name", clusterHandler.DeleteQueue)
				clusters.DELETE("/:cluster_id/queues/:name/contents", clusterHandler.PurgeQueue)
				clusters.POST("/:cluster_id/bindings", clusterHandler.CreateBinding)
				clusters.POST("/:cluster_id/bindings/delete", clusterHandler.DeleteBinding)
				clusters.POST("/:cluster_id/messages/publish", clusterHandler.PublishMessage)
				clusters.POST("/:cluster_id/messages/move", clusterHandler.MoveMessages)
			}

			// Administrator endpoints
			admin := authed.Group("")
			admin.Use(authn.RequireAdministrator())
			{
				admin.GET("/clusters", clusterHandler.ListClusters)
				admin.POST("/clusters", clusterHandler.CreateCluster)
				admin.DELETE("/clusters/:cluster_id", clusterHandler.DeleteCluster)

				admin.POST("/users", authHandler.CreateUser)

				// Audit records are read-only over HTTP. No mutation routes
				// exist for individual records, so PUT/DELETE/PATCH on them
				// fall through to 404. The retention trigger deletes in bulk
				// by policy, not by id.
				admin.GET("/audits", auditHandler.GetAudits)
				admin.GET("/audits/operation-types", auditHandler.GetOperationTypes)
				admin.GET("/audits/status", auditHandler.GetStatus)
				admin.POST("/audits/retention/run", auditHandler.RunRetention)
			}
		}
	}

	return r
}
