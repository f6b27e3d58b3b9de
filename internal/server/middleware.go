package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/procura/internal/apperror"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"go.uber.org/zap"
)

const (
	HeaderUserID  = "X-User-ID"
	HeaderOrgID   = "X-Organization-ID"
	HeaderOrgSlug = "X-Organization-Slug"

	contextPrincipalKey = "principal"
)

var ErrOrganizationMismatch = apperror.New(apperror.KindPermission, "User does not belong to this organization")

// PrincipalRequired resolves the authenticated user from the trusted upstream
// identity header. An organization header, when present, must name the
// user's own organization.
func (s *Server) PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.userSvc.ResolvePrincipal(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				err = ErrUnauthorized
			}
			AbortWithError(c, err)
			return
		}

		if err := s.checkOrganizationHeaders(c, principal); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextPrincipalKey, principal)
		c.Next()
	}
}

func (s *Server) checkOrganizationHeaders(c *gin.Context, principal userdomain.Principal) error {
	if raw := strings.TrimSpace(c.GetHeader(HeaderOrgID)); raw != "" {
		orgID, err := snowflake.ParseString(raw)
		if err != nil || orgID != principal.OrgID {
			return ErrOrganizationMismatch
		}
	}

	if slug := strings.TrimSpace(c.GetHeader(HeaderOrgSlug)); slug != "" {
		org, err := s.orgSvc.GetBySlug(c.Request.Context(), slug)
		if errors.Is(err, orgdomain.ErrNotFound) {
			return ErrOrganizationMismatch
		}
		if err != nil {
			return err
		}
		if org.ID != principal.OrgID {
			s.log.Warn("organization slug mismatch",
				zap.String("user_id", principal.UserID.String()),
				zap.String("slug", slug),
			)
			return ErrOrganizationMismatch
		}
	}
	return nil
}

func principalFromContext(c *gin.Context) (userdomain.Principal, bool) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return userdomain.Principal{}, false
	}
	principal, ok := value.(userdomain.Principal)
	return principal, ok
}
