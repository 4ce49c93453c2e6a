package api

import (
	"net/http"
	"strings"

	"github.com/creatorhub/messaging/internal/auth"
	"github.com/gin-gonic/gin"
)

// userIDKey is the gin context key holding the authenticated user id.
const userIDKey = "userId"

// requireAuth verifies the bearer token and stores the caller identity in
// the request context. The token may arrive in the Authorization header or,
// for clients that cannot set headers, the token query parameter.
func requireAuth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		tokenString := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "authorization header format must be Bearer <token>",
				})
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
		}

		userID, err := verifier.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
