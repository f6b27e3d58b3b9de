package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/procura/internal/cache"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Cache cache.OrgSettingsCache
	Clock clock.Clock
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	cache cache.OrgSettingsCache
	clock clock.Clock
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("organization.service"),
		repo:  p.Repo,
		genID: p.GenID,
		cache: p.Cache,
		clock: p.Clock,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	if err := domain.ValidatePatch(req.Settings); err != nil {
		return nil, err
	}

	orgSlug := strings.TrimSpace(req.Slug)
	if orgSlug == "" {
		orgSlug = slug.Make(name)
	} else {
		orgSlug = slug.Make(orgSlug)
	}
	if orgSlug == "" {
		return nil, domain.ErrInvalidSlug
	}

	settings := datatypes.JSONMap{}
	for k, v := range req.Settings {
		settings[k] = v
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		unique, err := s.uniqueSlug(ctx, repo, orgSlug)
		if err != nil {
			return err
		}
		org.Slug = unique
		return repo.Create(ctx, org)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return org, nil
}

// uniqueSlug appends a numeric suffix until the slug is free.
func (s *service) uniqueSlug(ctx context.Context, repo domain.Repository, base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		exists, err := repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) GetBySlug(ctx context.Context, orgSlug string) (*domain.Organization, error) {
	org, err := s.repo.FindBySlug(ctx, strings.TrimSpace(orgSlug))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) Settings(ctx context.Context, id snowflake.ID) (domain.Settings, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return domain.Settings(cached), nil
	}

	org, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	settings := domain.Settings(org.Settings)
	if settings == nil {
		settings = domain.Settings{}
	}
	s.cache.Set(ctx, id, settings)
	return settings, nil
}

func (s *service) UpdateSettings(ctx context.Context, id snowflake.ID, patch map[string]any) (domain.Settings, error) {
	if err := domain.ValidatePatch(patch); err != nil {
		return nil, err
	}

	var merged domain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrNotFound
		}

		merged = domain.Settings(org.Settings).Merge(patch)
		return repo.UpdateSettings(ctx, id, datatypes.JSONMap(merged))
	})
	s.cache.Invalidate(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info("organization settings updated", zap.String("org_id", id.String()))
	return merged, nil
}
