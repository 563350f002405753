package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"qalink/internal/models"
)

const CheckUserKey = "user"

// SessionUserKey is the session field holding the logged-in user id.
const SessionUserKey = "user_id"

// UserLoader resolves the session user.
type UserLoader interface {
	FindUser(ctx context.Context, id uint) (*models.User, error)
}

// AuthRequired rejects anonymous requests with a JSON 403
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"errors":     []string{"You need to be logged in to do that."},
				"error_type": "not_logged_in",
			})
			return
		}
		c.Next()
	}
}

// LoadUser retrieves user from session and sets to context
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if id, ok := session.Get(SessionUserKey).(uint); ok && id != 0 {
			user, err := users.FindUser(c.Request.Context(), id)
			if err == nil {
				c.Set(CheckUserKey, user)
			}
		}
		c.Next()
	}
}

// CurrentUser returns the user set by LoadUser.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CheckUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
