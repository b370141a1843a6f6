// README: Worker session middleware. Identity arrives in headers; issuing it is somebody else's job.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripengine/internal/modules/dispatch"
)

const (
	HeaderWorkerID   = "X-Worker-ID"
	HeaderCapability = "X-Service-Capability"

	sessionKey = "worker_session"
)

// Session builds a dispatch.Session from the request headers and rejects the
// request with 401 when they are missing or invalid.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := dispatch.NewSession(c.GetHeader(HeaderWorkerID), c.GetHeader(HeaderCapability))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

// WorkerSession returns the session stored by Session.
func WorkerSession(c *gin.Context) (dispatch.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return dispatch.Session{}, false
	}
	s, ok := v.(dispatch.Session)
	return s, ok
}
