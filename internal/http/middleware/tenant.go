// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the tenant identity for API routes. The service runs
// behind the CRM's gateway, which authenticates the caller and forwards the
// resolved tenant in the X-Tenant-ID header. Here we only validate shape and
// stash the value; tenant-scoped authorization happens per record in the
// service layer, which compares the stored tenant id and fails closed.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderTenantID carries the tenant resolved by the upstream gateway.
const HeaderTenantID = "X-Tenant-ID"

const ctxKeyTenantID = "tenantID"

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// GetTenantID returns the tenant identity stored by TenantResolver. The
// second return value indicates presence.
func GetTenantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyTenantID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// TenantResolver validates the X-Tenant-ID header and stashes it in the Gin
// context for handlers and downstream middleware (rate limiting keys,
// idempotency lookups).
//
// Behavior:
//   - Missing header: responds 401 with a compact error body.
//   - Malformed header: responds 400.
//   - Otherwise: sets the context value and invokes the next handler.
func TenantResolver() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderTenantID)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "missing_tenant",
				"message":    "X-Tenant-ID header required",
			})
			return
		}
		if !tenantIDPattern.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "bad_tenant",
				"message":    "invalid X-Tenant-ID",
			})
			return
		}
		c.Set(ctxKeyTenantID, id)
		c.Next()
	}
}
