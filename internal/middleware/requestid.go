package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier between services.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is where the identifier lives on the gin.Context.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with an identifier for log
// correlation. An inbound X-Request-ID from the load balancer is trusted and
// reused; otherwise a fresh UUID is minted. The value is stored on the
// context and echoed on the response so a caller can quote it when reporting
// a rejected request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
