package web

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/and161185/fashion-nexus/internal/limiter"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logging returns a middleware for structured access logging.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// никаких тел запросов, только метаданные
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

// Recover returns a middleware that recovers from panics.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// RateLimit rejects clients exceeding their request budget.
func RateLimit(v *limiter.Visitors) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Allow(c.ClientIP()) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}

// waitSession blocks until the viewer's session is determined.
func (s *Server) waitSession(c *gin.Context) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), waitTimeout)
	defer cancel()
	if err := viewerOf(c).Session.Wait(ctx); err != nil {
		s.log.Warn("session not determined", zap.Error(err))
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return false
	}
	return true
}

// requireAuth sends anonymous viewers to the login page.
func (s *Server) requireAuth(c *gin.Context) {
	if !s.waitSession(c) {
		return
	}
	if _, ok := viewerOf(c).Session.Identity(); !ok {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.Next()
}

// publicOnly sends signed-in viewers home.
func (s *Server) publicOnly(c *gin.Context) {
	if !s.waitSession(c) {
		return
	}
	if _, ok := viewerOf(c).Session.Identity(); ok {
		c.Redirect(http.StatusFound, "/")
		c.Abort()
		return
	}
	c.Next()
}
