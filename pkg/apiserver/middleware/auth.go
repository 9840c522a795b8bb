package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stageflow/stageflow/pkg/auth"
)

const (
	// CronKeyHeader lets a trusted scheduler authenticate without a bearer
	// token; its value must equal the configured cron secret.
	CronKeyHeader = "X-Cron-Key"

	ContextWorkspaceID = "workspace_id"
)

// CronAuth guards the tick entrypoint with the shared cron secret. When
// allowHeader is set, the scheduler-facing wrapper also accepts the secret
// via the X-Cron-Key header.
func CronAuth(secret string, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "cron secret not configured"})
			return
		}

		if allowHeader {
			if key := c.GetHeader(CronKeyHeader); key != "" && secretEqual(key, secret) {
				c.Next()
				return
			}
		}

		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		if !secretEqual(token, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		c.Next()
	}
}

// ServiceAuth guards producer-facing endpoints with workspace service
// tokens. The validated workspace id is placed on the request context.
func ServiceAuth(tokens *auth.ServiceTokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		claims, err := tokens.ValidateServiceToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ContextWorkspaceID, claims.WorkspaceID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authorization := c.GetHeader("Authorization")
	if authorization == "" {
		return "", false
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
