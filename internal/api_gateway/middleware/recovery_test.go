package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery_PanicBecomesLogged500(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))

	router := gin.New()
	router.Use(CorrelationID())
	router.Use(Recovery(logger))
	router.GET("/boom", func(c *gin.Context) {
		panic("rule evaluator blew up")
	})

	correlationID := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(CorrelationIDHeader, correlationID)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	errField, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errField["code"])
	assert.Equal(t, "An internal server error occurred", errField["message"])
	assert.Equal(t, correlationID, body["correlation_id"])

	line := buf.String()
	assert.Contains(t, line, `"level":"ERROR"`)
	assert.Contains(t, line, `"msg":"Panic recovered"`)
	assert.Contains(t, line, `"error":"rule evaluator blew up"`)
	assert.Contains(t, line, `"stack":`)
	assert.Contains(t, line, `"path":"/boom"`)
	assert.Contains(t, line, `"method":"GET"`)
}

func TestRecovery_PassesCleanRequestsThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(Recovery(logger))
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	req, _ := http.NewRequest(http.MethodGet, "/ok", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, buf.String())
}
