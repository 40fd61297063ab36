package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"local-rag-platform/utils"
)

// RequireAuth validates the bearer token and stores the claims on the
// context for downstream handlers.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if token == "" {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"missing_token", "Authorization header required", nil)
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token, jwtSecret)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized,
				"invalid_token", "Invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or "" when anonymous.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get("user_id"); exists {
		if str, ok := id.(string); ok {
			return str
		}
	}
	return ""
}

// GetUsername returns the authenticated username, or "".
func GetUsername(c *gin.Context) string {
	if name, exists := c.Get("username"); exists {
		if str, ok := name.(string); ok {
			return str
		}
	}
	return ""
}
