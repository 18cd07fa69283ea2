package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func correlationTestRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/ping", func(c *gin.Context) {
		*captured = c.GetString(CorrelationIDKey)
		c.Status(http.StatusOK)
	})
	return router
}

func TestCorrelationID_MintsIDWhenHeaderMissing(t *testing.T) {
	var contextID string
	router := correlationTestRouter(&contextID)

	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	headerID := rr.Header().Get(CorrelationIDHeader)
	_, err := uuid.Parse(headerID)
	assert.NoError(t, err, "minted correlation ID should be a UUID")
	assert.Equal(t, headerID, contextID, "header and context must carry the same ID")
}

func TestCorrelationID_KeepsCallerSuppliedID(t *testing.T) {
	var contextID string
	router := correlationTestRouter(&contextID)

	supplied := uuid.New().String()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationIDHeader, supplied)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, supplied, rr.Header().Get(CorrelationIDHeader))
	assert.Equal(t, supplied, contextID)
}

func TestGetCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("returns the stored ID", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		want := uuid.New().String()
		c.Set(CorrelationIDKey, want)

		assert.Equal(t, want, GetCorrelationID(c))
	})

	t.Run("empty when the middleware did not run", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		assert.Empty(t, GetCorrelationID(c))
	})

	t.Run("empty when the stored value is not a string", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(CorrelationIDKey, 12345)

		assert.Empty(t, GetCorrelationID(c))
	})
}
