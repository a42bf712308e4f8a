package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/boardwatch/boardwatch/pkg/logging"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggingMiddleware logs each request through the structured logger
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.GetLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.FullPath(),
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// RecoveryMiddleware recovers from handler panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}
