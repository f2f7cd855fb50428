package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

// AuthMiddleware validates a bearer token when one is sent and puts its claims on the request context.
// Requests without Authorization pass through; RequireUser decides whether that is allowed.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		validate, err := utils.JwtValidate(auth[len(bearer):])
		if err != nil || !validate.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), claim.ID)
		ctx = utils.SetUserNameInContext(ctx, claim.Name)
		ctx = utils.SetRoleInContext(ctx, claim.Role)
		if claim.CompanyId > 0 {
			ctx = utils.SetCompanyIdInContext(ctx, claim.CompanyId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireUser rejects requests that neither middleware authenticated.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserNameFromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireRole allows only users whose token carries role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r, ok := utils.GetRoleFromContext(c.Request.Context()); !ok || r != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
