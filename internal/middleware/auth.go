package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"talkdrove/internal/models"
)

const (
	ctxUserKey      = "session_user"
	ctxSessionIDKey = "session_id"
)

// SessionResolver turns a session cookie value into the signed-in user.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.SessionUser, string, error)
}

// LoadSession attaches the session user, when the cookie resolves to one.
// It never rejects a request; RequireLogin does that.
func LoadSession(sessions SessionResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight carries no cookie
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}
		user, sid, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			log.Printf("[session][load] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.Next()
			return
		}
		c.Set(ctxUserKey, user)
		c.Set(ctxSessionIDKey, sid)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*models.SessionUser, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.SessionUser)
	return u, ok && u != nil
}

func SessionID(c *gin.Context) string {
	return c.GetString(ctxSessionIDKey)
}
