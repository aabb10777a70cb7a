package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/models"
	"talkdrove/internal/services"
)

// UserReloader re-reads the account flags a session was issued with.
type UserReloader interface {
	SessionUserByID(ctx context.Context, id int64, deviceID string) (*models.SessionUser, error)
}

// RequireLogin rejects anonymous requests and banned accounts. Ban state is
// read from the database on every request, not from the session.
func RequireLogin(users UserReloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Please log in"})
			return
		}

		fresh, err := users.SessionUserByID(c.Request.Context(), u.ID, u.DeviceID)
		if errors.Is(err, services.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Please log in"})
			return
		}
		if err != nil {
			log.Printf("[authz][login] reload user_id=%d: %v", u.ID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
			return
		}
		if fresh.IsBanned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"banned":  true,
				"message": "Your account has been suspended. Contact support.",
			})
			return
		}

		c.Set(ctxUserKey, fresh)
		c.Next()
	}
}

// RequireAdmin must run after RequireLogin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok || !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "Admin access required"})
			return
		}
		c.Next()
	}
}
