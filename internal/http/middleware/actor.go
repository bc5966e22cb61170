package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/videocatalog-backend/internal/http/response"
	"github.com/yungbote/videocatalog-backend/internal/platform/ctxutil"
)

const (
	HeaderUserEmail = "X-User-Email"
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
)

// AttachActor copies the identity forwarded by the auth proxy into the
// request context. Requests without identity headers carry no RequestData.
func AttachActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &ctxutil.RequestData{
			UserID: strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
			Role:   strings.TrimSpace(c.GetHeader(HeaderUserRole)),
		}
		if rd.UserID != "" || rd.Email != "" {
			c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		}
		c.Next()
	}
}

type AdminMiddleware struct {
	adminEmails []string
}

func NewAdminMiddleware(adminEmails []string) *AdminMiddleware {
	return &AdminMiddleware{adminEmails: adminEmails}
}

func (m *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil {
			response.AbortError(c, http.StatusUnauthorized, "unauthenticated", errors.New("not authenticated"))
			return
		}
		if !rd.IsAdmin(m.adminEmails) {
			response.AbortError(c, http.StatusForbidden, "forbidden", errors.New("admin access required"))
			return
		}
		c.Next()
	}
}
