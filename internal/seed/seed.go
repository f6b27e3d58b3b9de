package seed

import (
	"context"
	"errors"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/procura/internal/config"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"go.uber.org/zap"
)

// EnsureMainOrgAndFinance seeds a default organization and one FINANCE user
// so a fresh install can configure settings before anyone else signs in.
func EnsureMainOrgAndFinance(ctx context.Context, cfg config.BootstrapConfig, orgs orgdomain.Service, users userdomain.Service, log *zap.Logger) error {
	if orgs == nil || users == nil {
		return errors.New("seed services are required")
	}

	org, err := orgs.GetBySlug(ctx, slug.Make(cfg.OrgName))
	if errors.Is(err, orgdomain.ErrNotFound) {
		org, err = orgs.Create(ctx, orgdomain.CreateOrganizationRequest{Name: cfg.OrgName})
	}
	if err != nil {
		return err
	}

	orgID := org.ID
	user, err := users.Register(ctx, userdomain.CreateUserRequest{
		Email:          cfg.FinanceEmail,
		FirstName:      "Finance",
		OrganizationID: &orgID,
		Role:           userdomain.RoleFinance,
	})
	switch {
	case errors.Is(err, userdomain.ErrEmailTaken):
		return nil
	case err != nil:
		return err
	}

	log.Info("seeded default organization",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("finance_user_id", user.ID.String()),
	)
	return nil
}
