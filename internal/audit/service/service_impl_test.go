package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/apperror"
	auditdomain "github.com/smallbiznis/procura/internal/audit/domain"
	"github.com/smallbiznis/procura/internal/audit/repository"
	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/pkg/db/dbtest"
	"github.com/smallbiznis/procura/pkg/db/pagination"
	"github.com/smallbiznis/procura/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAuditService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &auditdomain.AuditLog{})
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.MustNode(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func TestRecordAndListNewestFirst(t *testing.T) {
	svc, clk := setupAuditService(t)
	ctx := correlation.ContextWithCorrelationID(context.Background(), "cid-9")
	orgID := snowflake.ID(7)
	actor := snowflake.ID(42)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
			OrgID:      orgID,
			ActorID:    &actor,
			Action:     auditdomain.ActionRequestApproved,
			TargetType: auditdomain.TargetPurchaseRequest,
			TargetID:   snowflake.ID(1000 + i),
			Metadata:   map[string]any{"level": i + 1},
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, nil, auditdomain.Entry{
		OrgID:  snowflake.ID(8),
		Action: auditdomain.ActionRequestCreated,
	}))

	page, err := svc.List(context.Background(), orgID, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "1002", *page.AuditLogs[0].TargetID)
	assert.Equal(t, "user", page.AuditLogs[0].ActorType)
	assert.Equal(t, "cid-9", page.AuditLogs[0].Metadata["correlation_id"])

	next, err := svc.List(context.Background(), orgID, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.AuditLogs, 1)
	assert.Equal(t, "1000", *next.AuditLogs[0].TargetID)
	assert.False(t, next.HasMore)
}

func TestRecordValidatesInput(t *testing.T) {
	svc, _ := setupAuditService(t)

	err := svc.Record(context.Background(), nil, auditdomain.Entry{OrgID: 1})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	err = svc.Record(context.Background(), nil, auditdomain.Entry{Action: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListRejectsBadToken(t *testing.T) {
	svc, _ := setupAuditService(t)
	_, err := svc.List(context.Background(), 1, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
