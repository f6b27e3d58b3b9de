package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/procura/internal/apperror"
	"github.com/smallbiznis/procura/internal/notification"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/providers/storage"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	"github.com/smallbiznis/procura/internal/testkit"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/internal/workflow/domain"
	"github.com/smallbiznis/procura/internal/workflow/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type fixture struct {
	env    *testkit.Env
	engine domain.Service
	org    *orgdomain.Organization
	staff  userdomain.Principal
	level1 userdomain.Principal
	level2 userdomain.Principal
}

func setup(t *testing.T, settings map[string]any) *fixture {
	t.Helper()
	env := testkit.New(t)
	org := env.Org(t, settings)
	f := &fixture{
		env:    env,
		org:    org,
		staff:  env.Staff(t, org),
		level1: env.Approver(t, org, 1),
		level2: env.Approver(t, org, 2),
	}
	f.engine = service.NewService(service.ServiceParam{
		DB:       env.DB,
		Log:      env.Log,
		Repo:     env.RequestRepo,
		GenID:    env.Node,
		Orgs:     env.Orgs,
		Audit:    env.Audit,
		Tasks:    env.Tasks,
		Storage:  env.Storage,
		Locker:   env.Locker,
		Clock:    env.Clock,
		Workflow: env.Workflow,
		Metrics:  metrics.NewNoop(),
	})
	return f
}

func (f *fixture) approvals(t *testing.T, pr *prdomain.PurchaseRequest) []prdomain.Approval {
	t.Helper()
	approvals, err := f.env.RequestRepo.ListApprovals(context.Background(), pr.ID)
	require.NoError(t, err)
	return approvals
}

func notificationKinds(calls []tasks.Call) []string {
	var kinds []string
	for _, c := range calls {
		if c.Name != tasks.TaskSendNotification {
			continue
		}
		kinds = append(kinds, c.Args[0].(tasks.NotificationArgs).Kind)
	}
	return kinds
}

func countTask(calls []tasks.Call, name string) int {
	n := 0
	for _, c := range calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

func TestTwoLevelApprovalChain(t *testing.T) {
	f := setup(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 2})
	ctx := context.Background()
	pr := f.env.Request(t, f.staff, "1500")

	approval, err := f.engine.Approve(ctx, f.level1, pr.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, 1, approval.ApprovalLevel)
	assert.Equal(t, prdomain.ActionApproved, approval.Action)

	got := f.env.Reload(t, pr.ID)
	assert.Equal(t, prdomain.StatusPending, got.Status)
	assert.Equal(t, 1, got.CurrentApprovalLevel)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, f.level1.UserID, *got.UpdatedBy)
	assert.Equal(t, []string{notification.KindPendingNextLevel}, notificationKinds(f.env.Tasks.Calls()))
	assert.Zero(t, countTask(f.env.Tasks.Calls(), tasks.TaskGeneratePurchaseOrder))

	f.env.Tasks.Reset()
	_, err = f.engine.Approve(ctx, f.level2, pr.ID, "")
	require.NoError(t, err)

	got = f.env.Reload(t, pr.ID)
	assert.Equal(t, prdomain.StatusApproved, got.Status)
	assert.Equal(t, 2, got.CurrentApprovalLevel)
	assert.Equal(t, 1, countTask(f.env.Tasks.Calls(), tasks.TaskGeneratePurchaseOrder))
	assert.Equal(t, []string{notification.KindApproved}, notificationKinds(f.env.Tasks.Calls()))
	assert.Len(t, f.approvals(t, pr), 2)
}

func TestSingleLevelOrganizationApprovesImmediately(t *testing.T) {
	f := setup(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 1})
	pr := f.env.Request(t, f.staff, "10")

	_, err := f.engine.Approve(context.Background(), f.level1, pr.ID, "")
	require.NoError(t, err)
	assert.Equal(t, prdomain.StatusApproved, f.env.Reload(t, pr.ID).Status)
}

func TestApproveWithColdSettingsCache(t *testing.T) {
	f := setup(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 1})
	pr := f.env.Request(t, f.staff, "10")
	f.env.ColdSettings(f.org)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := f.engine.Approve(ctx, f.level1, pr.ID, "")
	require.NoError(t, err)
	require.NoError(t, ctx.Err())
	assert.Equal(t, prdomain.StatusApproved, f.env.Reload(t, pr.ID).Status)
}

func TestRejectionIsTerminal(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	pr := f.env.Request(t, f.staff, "1500")

	rejection, err := f.engine.Reject(ctx, f.level1, pr.ID, "budget")
	require.NoError(t, err)
	assert.Equal(t, prdomain.ActionRejected, rejection.Action)
	assert.Equal(t, "budget", rejection.Comments)

	got := f.env.Reload(t, pr.ID)
	assert.Equal(t, prdomain.StatusRejected, got.Status)
	assert.Equal(t, 1, got.CurrentApprovalLevel)
	assert.Equal(t, []string{notification.KindRejected}, notificationKinds(f.env.Tasks.Calls()))

	_, err = f.engine.Approve(ctx, f.level2, pr.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Request is not pending", apperror.Reason(err))

	_, err = f.engine.Reject(ctx, f.level2, pr.ID, "also no")
	assert.ErrorIs(t, err, domain.ErrNotPending)
	assert.Len(t, f.approvals(t, pr), 1)
}

func TestHigherLevelCannotSkipAhead(t *testing.T) {
	f := setup(t, nil)
	pr := f.env.Request(t, f.staff, "1500")

	_, err := f.engine.Approve(context.Background(), f.level2, pr.ID, "")
	require.Error(t, err)
	assert.Equal(t, "Previous level (1) has not been approved yet", apperror.Reason(err))
	assert.Empty(t, f.approvals(t, pr))
	assert.Empty(t, f.env.Tasks.Calls())
}

func TestSecondDecisionAtSameLevelFails(t *testing.T) {
	f := setup(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 3})
	ctx := context.Background()
	otherLevel1 := f.env.Approver(t, f.org, 1)
	pr := f.env.Request(t, f.staff, "1500")

	_, err := f.engine.Approve(ctx, f.level1, pr.ID, "")
	require.NoError(t, err)

	_, err = f.engine.Approve(ctx, otherLevel1, pr.ID, "")
	require.Error(t, err)
	assert.Equal(t, "Level 1 has already approved this request", apperror.Reason(err))

	_, err = f.engine.Reject(ctx, otherLevel1, pr.ID, "changed my mind")
	require.Error(t, err)
	assert.Equal(t, "Cannot reject: Level 1 has already approved this request", apperror.Reason(err))
	assert.Len(t, f.approvals(t, pr), 1)
}

func TestRejectRequiresComments(t *testing.T) {
	f := setup(t, nil)
	pr := f.env.Request(t, f.staff, "10")

	_, err := f.engine.Reject(context.Background(), f.level1, pr.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrCommentsRequired)
	assert.Equal(t, prdomain.StatusPending, f.env.Reload(t, pr.ID).Status)
}

func TestNonApproversCannotDecide(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	pr := f.env.Request(t, f.staff, "10")
	finance := f.env.Finance(t, f.org)

	_, err := f.engine.Approve(ctx, f.staff, pr.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotApprover)
	_, err = f.engine.Reject(ctx, finance, pr.ID, "no")
	assert.ErrorIs(t, err, domain.ErrNotApprover)

	outsider := f.env.Approver(t, f.env.Org(t, nil), 1)
	_, err = f.engine.Approve(ctx, outsider, pr.ID, "")
	assert.ErrorIs(t, err, prdomain.ErrNotFound)
}

func TestCanActAtLevelReasons(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	pr := f.env.Request(t, f.staff, "10")

	cases := []struct {
		name      string
		principal userdomain.Principal
		level     int
		allowed   bool
		reason    string
	}{
		{"staff", f.staff, 1, false, "User is not an approver"},
		{"level mismatch", f.level1, 2, false, "User's approval level (1) does not match required level (2)"},
		{"previous missing", f.level2, 2, false, "Previous level (1) has not been approved yet"},
		{"first level", f.level1, 1, true, "Can approve at level 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := f.engine.CanActAtLevel(ctx, pr, tc.principal, tc.level)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, decision.Allowed)
			assert.Equal(t, tc.reason, decision.Reason)
		})
	}

	approved := *pr
	approved.Status = prdomain.StatusApproved
	decision, err := f.engine.CanActAtLevel(ctx, &approved, f.level1, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Deny("Request is not pending"), decision)
}

func TestConcurrentApprovalsAtSameLevel(t *testing.T) {
	f := setup(t, nil)
	pr := f.env.Request(t, f.staff, "1500")
	approvers := []userdomain.Principal{f.level1, f.env.Approver(t, f.org, 1), f.env.Approver(t, f.org, 1)}
	f.env.ColdSettings(f.org)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, approver := range approvers {
		wg.Add(1)
		go func(p userdomain.Principal) {
			defer wg.Done()
			_, err := f.engine.Approve(ctx, p, pr.ID, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperror.ErrValidation)
		}(approver)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, f.approvals(t, pr), 1)
	assert.Equal(t, 1, f.env.Reload(t, pr.ID).CurrentApprovalLevel)
}

func TestSubmitReceiptRequiresApprovedRequest(t *testing.T) {
	f := setup(t, nil)
	pr := f.env.Request(t, f.staff, "10")

	_, err := f.engine.SubmitReceipt(context.Background(), f.staff, pr.ID, storage.File{
		Filename: "receipt.pdf",
		Data:     samplePDF,
	})
	assert.ErrorIs(t, err, domain.ErrReceiptNotApproved)
	assert.ErrorIs(t, err, apperror.ErrNotApproved)
	assert.Empty(t, f.env.Tasks.Calls())
	assert.Nil(t, f.env.Reload(t, pr.ID).ReceiptFileURL)
	assert.NoDirExists(t, f.env.Config.Storage.Dir+"/procure-to-pay")
}

func TestSubmitReceiptStoresAndEnqueuesReconciliation(t *testing.T) {
	f := setup(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 1})
	ctx := context.Background()
	pr := f.env.Request(t, f.staff, "10")
	_, err := f.engine.Approve(ctx, f.level1, pr.ID, "")
	require.NoError(t, err)
	f.env.Tasks.Reset()

	_, err = f.engine.SubmitReceipt(ctx, f.level1, pr.ID, storage.File{Filename: "r.pdf", Data: samplePDF})
	assert.ErrorIs(t, err, domain.ErrOnlyStaffReceipt)

	got, err := f.engine.SubmitReceipt(ctx, f.staff, pr.ID, storage.File{Filename: "receipt.pdf", Data: samplePDF})
	require.NoError(t, err)
	require.NotNil(t, got.ReceiptFileURL)
	assert.Contains(t, *got.ReceiptFileURL, "/procure-to-pay/"+f.org.ID.String()+"/receipts/")

	calls := f.env.Tasks.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, tasks.TaskProcessReceipt, calls[0].Name)
	args := calls[0].Args[0].(tasks.DocumentArgs)
	assert.Equal(t, *got.ReceiptFileURL, args.FileURL)
}
