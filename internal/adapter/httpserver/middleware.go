package httpserver

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/magicaleks/onionfetch/internal/domain"
)

const headerSecret = "X-Fetch-Secret"

func authMiddleware(secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(headerSecret)), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

func requestRecoveryWithLog(logger *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, err any) {
		logger.Error("handler panicked",
			zap.Any("panic", err),
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.String()),
			zap.Stack("stack"),
		)
		c.String(http.StatusInternalServerError, domain.MsgUnexpected)
		c.Abort()
	}
}
