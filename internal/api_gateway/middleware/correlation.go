package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the request's correlation ID on the wire
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey is where the correlation ID lives in the gin context
	CorrelationIDKey = "correlation_id"
)

// CorrelationID attaches a correlation ID to every request. A caller-supplied
// header wins; otherwise a fresh UUID is minted. The ID is echoed back on the
// response so clients can quote it when reporting problems.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation ID, or "" when the
// middleware did not run or stored something unexpected.
func GetCorrelationID(c *gin.Context) string {
	v, ok := c.Get(CorrelationIDKey)
	if !ok {
		return ""
	}
	id, ok := v.(string)
	if !ok {
		return ""
	}
	return id
}
