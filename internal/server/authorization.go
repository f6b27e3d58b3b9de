package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procura/internal/authorization"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
)

// authorize checks the casbin role policy before the handler runs. The core
// services repeat their own role rules, so this is the coarse gate only.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	principal, ok := principalFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return authorization.ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), principal, strings.TrimSpace(object), strings.TrimSpace(action))
}

func mustPrincipal(c *gin.Context) (userdomain.Principal, bool) {
	principal, ok := principalFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return userdomain.Principal{}, false
	}
	return principal, true
}
