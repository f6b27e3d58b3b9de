package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/cache"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/organization/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOrganizationService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(&domain.Organization{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repository.NewRepository(conn),
		GenID: node,
		Cache: cache.NewMemorySettingsCache(time.Hour),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	})
	return svc, conn
}

func TestCreateDerivesUniqueSlug(t *testing.T) {
	svc, _ := setupOrganizationService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme Supplies"})
	require.NoError(t, err)
	assert.Equal(t, "acme-supplies", first.Slug)

	second, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme  Supplies!", Slug: "Acme Supplies"})
	require.NoError(t, err)
	assert.Equal(t, "acme-supplies-2", second.Slug)

	found, err := svc.GetBySlug(ctx, "acme-supplies-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, _ := setupOrganizationService(t)

	_, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := setupOrganizationService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme", Slug: "acme-two"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestSettingsAreCachedAndInvalidatedOnWrite(t *testing.T) {
	svc, conn := setupOrganizationService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, domain.CreateOrganizationRequest{
		Name:     "Globex",
		Settings: map[string]any{domain.SettingApprovalLevelsCount: 3},
	})
	require.NoError(t, err)

	settings, err := svc.Settings(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, settings.ApprovalLevelsCount())

	// a write that bypasses the service is not observed while cached
	require.NoError(t, conn.Exec(
		"UPDATE organizations SET settings = ? WHERE id = ?",
		`{"approval_levels_count":5}`, org.ID,
	).Error)
	settings, err = svc.Settings(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, settings.ApprovalLevelsCount())

	updated, err := svc.UpdateSettings(ctx, org.ID, map[string]any{domain.SettingFinanceCanSeeAll: true})
	require.NoError(t, err)
	assert.True(t, updated.FinanceCanSeeAll())
	assert.Equal(t, 5, updated.ApprovalLevelsCount())

	settings, err = svc.Settings(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, settings.FinanceCanSeeAll())
	assert.Equal(t, 5, settings.ApprovalLevelsCount())
}

func TestUpdateSettingsValidates(t *testing.T) {
	svc, _ := setupOrganizationService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Initech"})
	require.NoError(t, err)

	_, err = svc.UpdateSettings(ctx, org.ID, map[string]any{domain.SettingApprovalLevelsCount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidApprovalLevels)

	_, err = svc.UpdateSettings(ctx, snowflake.ID(999), map[string]any{domain.SettingFinanceCanSeeAll: true})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
