package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func loggerTestRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Logger(logger))
	return router
}

func TestLogger_EmitsOneAccessLineWithRequestFields(t *testing.T) {
	var buf bytes.Buffer
	router := loggerTestRouter(&buf)
	router.GET("/documents", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	correlationID := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/documents?tenant_id=t1", nil)
	req.Header.Set("User-Agent", "scanner-agent")
	req.Header.Set(CorrelationIDHeader, correlationID)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	line := buf.String()
	assert.Contains(t, line, `"level":"INFO"`)
	assert.Contains(t, line, `"msg":"HTTP request"`)
	assert.Contains(t, line, `"method":"GET"`)
	assert.Contains(t, line, `"path":"/documents?tenant_id=t1"`)
	assert.Contains(t, line, `"status":200`)
	assert.Contains(t, line, `"latency":`)
	assert.Contains(t, line, `"client_ip":`)
	assert.Contains(t, line, `"user_agent":"scanner-agent"`)
	assert.Contains(t, line, `"correlation_id":"`+correlationID+`"`)
}

func TestLogger_TagsMintedCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	router := loggerTestRouter(&buf)
	router.POST("/journals", func(c *gin.Context) {
		c.String(http.StatusCreated, "Created")
	})

	req, _ := http.NewRequest(http.MethodPost, "/journals", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	line := buf.String()
	assert.Contains(t, line, `"method":"POST"`)
	assert.Contains(t, line, `"path":"/journals"`)
	assert.Contains(t, line, `"status":201`)
	assert.Contains(t, line, `"correlation_id":`)
}
