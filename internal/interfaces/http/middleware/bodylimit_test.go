package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/interfaces/http/dto"
)

// webhookEcho reads the whole body the way the webhook handlers do and
// reports the size it saw, or 413 when the reader hit the limit
func webhookEcho(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.String(http.StatusRequestEntityTooLarge, "limit %d", tooLarge.Limit)
		return
	}
	if err != nil {
		c.String(http.StatusBadRequest, "%v", err)
		return
	}
	c.String(http.StatusOK, "%d", len(raw))
}

func bodyLimitEngine(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID(), BodyLimit(limit))
	engine.POST("/webhooks/shopify", webhookEcho)
	engine.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return engine
}

func TestBodyLimit(t *testing.T) {
	t.Run("payload within the limit reaches the handler untouched", func(t *testing.T) {
		payload := `{"id":5001,"financial_status":"paid"}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(payload))
		w := httptest.NewRecorder()
		bodyLimitEngine(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.Itoa(len(payload)), w.Body.String())
	})

	t.Run("declared oversize body is refused with the error envelope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(strings.Repeat("x", 200)))
		req.Header.Set(RequestIDHeader, "delivery-413")
		w := httptest.NewRecorder()
		bodyLimitEngine(100).ServeHTTP(w, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
		assert.Equal(t, "delivery-413", resp.Error.RequestID)
		assert.Equal(t, "delivery-413", w.Header().Get(RequestIDHeader))
	})

	t.Run("body exactly at the limit is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(strings.Repeat("x", 64)))
		w := httptest.NewRecorder()
		bodyLimitEngine(64).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "64", w.Body.String())
	})

	t.Run("chunked body is cut off while reading", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(strings.Repeat("x", 100)))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		bodyLimitEngine(50).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "limit 50", w.Body.String())
	})

	t.Run("requests without a body pass", func(t *testing.T) {
		w := httptest.NewRecorder()
		bodyLimitEngine(10).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
