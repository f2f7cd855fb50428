package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

// SessionMiddleware resolves an opaque "token" header through Redis (Token:<token> -> user name).
// Service-to-service callers use it instead of a JWT.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserNameInContext(ctx, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
