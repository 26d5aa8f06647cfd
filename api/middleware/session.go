package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"blogview/services"
)

const SessionKey = "session"

// SessionMiddleware attaches the caller's view session to the context,
// creating one (and its cookie) when the cookie is missing or unknown.
func SessionMiddleware(manager *services.SessionManager, cookieName string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookieName)
		session, ok := manager.Get(c.Request.Context(), id)
		if !ok {
			session = manager.Create()
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, session.ID, int(ttl.Seconds()), "/", "", false, true)
		c.Set(SessionKey, session)
		c.Next()
	}
}

// CurrentSession returns the session set by SessionMiddleware.
func CurrentSession(c *gin.Context) *services.Session {
	v, exists := c.Get(SessionKey)
	if !exists {
		return nil
	}
	s, _ := v.(*services.Session)
	return s
}
