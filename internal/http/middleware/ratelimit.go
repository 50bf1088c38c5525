// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the application's fixed-window rate limiter
// (internal/ratelimit) to HTTP. The middleware keys limits by client IP —
// sessions are anonymous, so the IP is the only stable caller identity —
// and returns a compact 429 envelope when admission is denied.
//
// The limiter backend decides the enforcement scope: the in-memory backend
// limits per process, the Mongo backend enforces one global window across
// instances and fails open on storage errors.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tryon-backend/internal/ratelimit"
	"github.com/tbourn/go-tryon-backend/internal/services"
)

// keyFunc selects the identity used to key a rate-limit window.
type keyFunc func(*gin.Context) string

// KeyByIP keys windows by the client IP address, prefixed to leave room for
// other identity namespaces.
func KeyByIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// RateLimit returns a Gin middleware enforcing lim for each request.
//
// When a request is denied the middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	{
//	  "request_id": "<uuid>",
//	  "code":       "too_many_requests",
//	  "message":    "rate limit exceeded"
//	}
//
// Admitted requests carry X-RateLimit-Remaining when the backend can report
// it cheaply.
func RateLimit(lim ratelimit.Limiter, keyFn keyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if !lim.CheckLimit(c.Request.Context(), key) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "too_many_requests",
				"message":    services.ErrRateLimited.Error(),
			})
			return
		}
		if rem := lim.RemainingRequests(c.Request.Context(), key); rem != ratelimit.RemainingUnknown {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(rem))
		}
		c.Next()
	}
}
