package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRegisterRoutes(t *testing.T) {
	engine := gin.New()
	RegisterRoutes(engine, Handlers{
		Webhook: NewWebhookHandler(new(MockWebhookAcceptor)),
		Return:  NewReturnHandler(new(MockReturnLifecycle)),
		Job:     NewJobHandler(new(MockJobQueries)),
		Sync:    NewSyncHandler(new(MockSyncRunner)),
		System:  NewSystemHandler("", nil),
	})

	registered := make(map[string]bool)
	for _, r := range engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"POST /webhooks/shopify",
		"POST /webhooks/trendyol",
		"POST /webhooks/geliver",
		"GET /api/v1/returns/:id",
		"POST /api/v1/returns/:id/review",
		"POST /api/v1/returns/:id/approve",
		"POST /api/v1/returns/:id/label",
		"GET /api/v1/returns/:id/label",
		"POST /api/v1/returns/:id/ship",
		"POST /api/v1/returns/:id/receive",
		"POST /api/v1/returns/:id/inspect",
		"POST /api/v1/returns/:id/complete",
		"POST /api/v1/returns/:id/reject",
		"POST /api/v1/returns/:id/cancel",
		"PUT /api/v1/returns/:id/items/:item_id/condition",
		"GET /api/v1/jobs/dead",
		"POST /api/v1/jobs/dead/retry",
		"GET /api/v1/jobs/stats",
		"GET /api/v1/jobs/:id",
		"POST /api/v1/jobs/:id/retry",
		"POST /api/v1/integrations/:id/sync",
		"GET /api/v1/system/info",
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}
	assert.Len(t, registered, len(want))
}

func TestRegisterRoutes_APIMiddlewareSkipsWebhooks(t *testing.T) {
	engine := gin.New()
	blocked := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTeapot)
	}
	RegisterRoutes(engine, Handlers{
		Webhook: NewWebhookHandler(new(MockWebhookAcceptor)),
		Return:  NewReturnHandler(new(MockReturnLifecycle)),
		Job:     NewJobHandler(new(MockJobQueries)),
		Sync:    NewSyncHandler(new(MockSyncRunner)),
		System:  NewSystemHandler("", nil),
	}, blocked)

	w := performRaw(engine, http.MethodGet, "/api/v1/system/info")
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = performRaw(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}
