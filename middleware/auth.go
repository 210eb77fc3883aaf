package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/models"
)

// Context keys set by RequireSession
const (
	contextUserKey    = "current_user"
	contextSessionKey = "current_session"
)

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RequireSession validates the opaque bearer token against the session
// store and loads the owning user into the request context. Sessions are
// explicit rows, not ambient claims: everything about the caller comes
// from the database on each request.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_TOKEN",
					"message": "No session token, authorization denied",
				},
			})
			c.Abort()
			return
		}

		db := config.GetDB()
		var session models.Session
		if err := db.Preload("User").Where("token = ?", token).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INVALID_TOKEN",
						"message": "Session token is not valid",
					},
				})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DATABASE_ERROR",
						"message": "Failed to validate session",
					},
				})
			}
			c.Abort()
			return
		}

		if session.Expired() {
			// Expired rows are cleaned up lazily, on first rejected use
			db.Delete(&session)
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "SESSION_EXPIRED",
					"message": "Session has expired, please log in again",
				},
			})
			c.Abort()
			return
		}

		c.Set(contextUserKey, &session.User)
		c.Set(contextSessionKey, &session)
		c.Next()
	}
}

// RequireRole gates a route to callers holding one of the given roles.
// Must run after RequireSession.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := GetCurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Insufficient permissions to access this resource",
			},
		})
		c.Abort()
	}
}

// GetCurrentUser extracts the authenticated user from the Gin context
func GetCurrentUser(c *gin.Context) (*models.User, error) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_USER", Message: "User not found in context"}
	}

	user, ok := value.(*models.User)
	if !ok {
		return nil, &AuthError{Code: "INVALID_USER", Message: "User is not in the expected format"}
	}

	return user, nil
}

// GetCurrentSession extracts the validated session from the Gin context
func GetCurrentSession(c *gin.Context) (*models.Session, error) {
	value, exists := c.Get(contextSessionKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_SESSION", Message: "Session not found in context"}
	}

	session, ok := value.(*models.Session)
	if !ok {
		return nil, &AuthError{Code: "INVALID_SESSION", Message: "Session is not in the expected format"}
	}

	return session, nil
}

// SetTestUser injects a user and session into the context (testing only)
func SetTestUser(c *gin.Context, user *models.User, session *models.Session) {
	c.Set(contextUserKey, user)
	if session != nil {
		c.Set(contextSessionKey, session)
	}
}

// extractBearerToken pulls the token out of the Authorization header
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
