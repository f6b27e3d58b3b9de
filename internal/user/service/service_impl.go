package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type service struct {
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:   p.Log.Named("user.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:             s.genID.Generate(),
		Email:          email,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		OrganizationID: req.OrganizationID,
		Role:           req.Role,
		ApprovalLevel:  req.ApprovalLevel,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) ResolvePrincipal(ctx context.Context, id snowflake.ID) (domain.Principal, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Principal{}, err
	}
	if !user.IsActive {
		return domain.Principal{}, domain.ErrInactiveUser
	}
	principal, ok := user.Principal()
	if !ok {
		return domain.Principal{}, domain.ErrNoOrganization
	}
	return principal, nil
}

func (s *service) ListActiveApprovers(ctx context.Context, orgID snowflake.ID, level int) ([]domain.User, error) {
	if level < 1 {
		return nil, nil
	}
	return s.repo.ListByRoleLevel(ctx, orgID, domain.RoleApprover, level)
}
