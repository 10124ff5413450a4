package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// UnknownClient is the sentinel scope value used when no client address can be
// determined. A missing address must never crash scope keying; it just means
// all unattributable traffic shares one bucket.
const UnknownClient = "unknown"

// ClientIP returns the best-effort original client address for scope-keying
// IP-based rate limits. The first entry of X-Forwarded-For is treated as the
// original client (the rest of the chain is proxies), then X-Real-IP, then the
// socket address.
func ClientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	return UnknownClient
}
