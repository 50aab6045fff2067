package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/omnisync/backend/internal/interfaces/http/router"
)

// Handlers bundles the HTTP handlers served by the API
type Handlers struct {
	Webhook *WebhookHandler
	Return  *ReturnHandler
	Job     *JobHandler
	Sync    *SyncHandler
	System  *SystemHandler
}

// RegisterRoutes mounts every endpoint on engine. apiMiddleware applies to
// /api/v1 only; webhooks and the health check bypass it.
func RegisterRoutes(engine *gin.Engine, h Handlers, apiMiddleware ...gin.HandlerFunc) {
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	healthGroup := router.NewDomainGroup("health", "")
	healthGroup.GET("/health", h.System.Health)

	webhooksGroup := router.NewDomainGroup("webhooks", "/webhooks")
	webhooksGroup.
		POST("/shopify", h.Webhook.Shopify).
		POST("/trendyol", h.Webhook.Trendyol).
		POST("/geliver", h.Webhook.Geliver)

	returnsGroup := router.NewDomainGroup("returns", "/returns").Use(apiMiddleware...)
	returnsGroup.
		GET("/:id", h.Return.Get).
		POST("/:id/review", h.Return.Review).
		POST("/:id/approve", h.Return.Approve).
		POST("/:id/label", h.Return.GenerateLabel).
		GET("/:id/label", h.Return.DownloadLabel).
		POST("/:id/ship", h.Return.Ship).
		POST("/:id/receive", h.Return.Receive).
		POST("/:id/inspect", h.Return.Inspect).
		POST("/:id/complete", h.Return.Complete).
		POST("/:id/reject", h.Return.Reject).
		POST("/:id/cancel", h.Return.Cancel).
		PUT("/:id/items/:item_id/condition", h.Return.SetItemCondition)

	jobsGroup := router.NewDomainGroup("jobs", "/jobs").Use(apiMiddleware...)
	jobsGroup.
		GET("/dead", h.Job.GetDeadLetterJobs).
		POST("/dead/retry", h.Job.RetryAllDeadJobs).
		GET("/stats", h.Job.GetStats).
		GET("/:id", h.Job.GetJob).
		POST("/:id/retry", h.Job.RetryDeadJob)

	integrationsGroup := router.NewDomainGroup("integrations", "/integrations").Use(apiMiddleware...)
	integrationsGroup.POST("/:id/sync", h.Sync.Trigger)

	systemGroup := router.NewDomainGroup("system", "/system").Use(apiMiddleware...)
	systemGroup.GET("/info", h.System.GetSystemInfo)

	r.RegisterPublic(healthGroup).
		RegisterPublic(webhooksGroup).
		Register(returnsGroup).
		Register(jobsGroup).
		Register(integrationsGroup).
		Register(systemGroup)
	r.Setup()
}
