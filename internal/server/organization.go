package server

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"go.uber.org/zap"
)

type organizationSettingsResponse struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Slug     string             `json:"slug"`
	Settings orgdomain.Settings `json:"settings"`

	ApprovalLevelsCount       int  `json:"approval_levels_count"`
	FinanceCanSeeAll          bool `json:"finance_can_see_all"`
	EmailNotificationsEnabled bool `json:"email_notifications_enabled"`
}

func (s *Server) GetOrganizationSettings(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	org, err := s.orgSvc.GetByID(ctx, principal.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	settings, err := s.orgSvc.Settings(ctx, principal.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newOrganizationSettingsResponse(org, settings)})
}

func (s *Server) UpdateOrganizationSettings(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil || len(patch) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	settings, err := s.orgSvc.UpdateSettings(ctx, principal.OrgID, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	org, err := s.orgSvc.GetByID(ctx, principal.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		keys := make([]string, 0, len(patch))
		for key := range patch {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
			OrgID:      org.ID,
			ActorID:    &principal.UserID,
			Action:     auditdomain.ActionSettingsUpdated,
			TargetType: auditdomain.TargetOrganization,
			TargetID:   org.ID,
			Metadata:   map[string]any{"keys": keys},
		})
		if err != nil {
			s.log.Warn("failed to audit settings update", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": newOrganizationSettingsResponse(org, settings)})
}

func newOrganizationSettingsResponse(org *orgdomain.Organization, settings orgdomain.Settings) organizationSettingsResponse {
	return organizationSettingsResponse{
		ID:                        org.ID.String(),
		Name:                      org.Name,
		Slug:                      org.Slug,
		Settings:                  settings,
		ApprovalLevelsCount:       settings.ApprovalLevelsCount(),
		FinanceCanSeeAll:          settings.FinanceCanSeeAll(),
		EmailNotificationsEnabled: settings.EmailNotificationsEnabled(),
	}
}
