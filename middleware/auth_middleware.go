package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mabletask/tracker/logger"
	"mabletask/tracker/utils"
)

// ContextUserID is the gin context key holding the authenticated user id.
const ContextUserID = "user_id"

const tokenCookie = "jwt_token"

// OptionalIdentity attaches the user id of a valid token from the jwt_token
// cookie or the Authorization header. Requests without a usable token carry
// on anonymously.
func OptionalIdentity(secret string, log logger.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" || len(key) == 0 {
			c.Next()
			return
		}

		userID, err := utils.UserIDFromJWT(tokenString, key)
		if err != nil {
			log.Debug("Ignoring unusable token", logger.Error(err))
			c.Next()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if tokenString, err := c.Cookie(tokenCookie); err == nil && tokenString != "" {
		return tokenString
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return header
}

// UserID returns the id set by OptionalIdentity, or nil for anonymous requests.
func UserID(c *gin.Context) *string {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

// AdminKeyRequired guards administrative routes with the X-API-KEY header.
// With no key configured every request is rejected.
func AdminKeyRequired(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader("X-API-KEY")
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid API key"})
			return
		}
		c.Next()
	}
}
