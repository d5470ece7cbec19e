package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

const permissionsKey = "permissions"

// AuthMiddleware validates bearer tokens and stores the caller's
// permissions in the gin context.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(
				"UNAUTHORIZED", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(
				"UNAUTHORIZED", "invalid authorization header format", nil))
			return
		}
		token := parts[1]

		claims, permissions, err := a.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(
				"UNAUTHORIZED", "invalid or expired token", nil))
			return
		}

		c.Set(permissionsKey, permissions)
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequirePermission checks if user has required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(Permissions(c), required) {
			c.AbortWithStatusJSON(http.StatusForbidden, types.NewErrorResponse(
				"FORBIDDEN", "insufficient permissions", gin.H{"required": string(required)}))
			return
		}
		c.Next()
	}
}

// Permissions extracts the permissions stored by AuthMiddleware.
func Permissions(c *gin.Context) []Permission {
	if perms, ok := c.Get(permissionsKey); ok {
		if p, ok := perms.([]Permission); ok {
			return p
		}
	}
	return nil
}
