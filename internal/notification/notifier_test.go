package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/procura/internal/notification"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	"github.com/smallbiznis/procura/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To       []string
	Template string
	Data     map[string]any
}

type mailRecorder struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *mailRecorder) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.SendTemplate(ctx, to, "", map[string]any{"subject": subject})
}

func (m *mailRecorder) SendTemplate(_ context.Context, to []string, templateName string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{To: to, Template: templateName, Data: data})
	return nil
}

func (m *mailRecorder) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func newNotifier(env *testkit.Env, mail *mailRecorder) *notification.Notifier {
	return notification.NewNotifier(notification.Params{
		Log:      env.Log,
		Requests: env.RequestRepo,
		Orgs:     env.Orgs,
		Users:    env.Users,
		Mail:     mail,
		Metrics:  metrics.NewNoop(),
	})
}

func TestPendingNextLevelMailsEveryActiveApprover(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, nil)
	staff := env.Staff(t, org)
	first := env.Approver(t, org, 1)
	second := env.Approver(t, org, 1)
	env.Approver(t, org, 2)
	pr := env.Request(t, staff, "1200")

	mail := &mailRecorder{}
	require.NoError(t, newNotifier(env, mail).Notify(context.Background(), pr.ID, notification.KindPendingNextLevel, nil))

	sent := mail.all()
	require.Len(t, sent, 2)
	recipients := []string{sent[0].To[0], sent[1].To[0]}
	assert.ElementsMatch(t, []string{first.Email, second.Email}, recipients)
	assert.Equal(t, "pending_next_level.html", sent[0].Template)
	assert.Equal(t, "Purchase Request Pending Approval - Laptops", sent[0].Data["subject"])
	assert.Equal(t, "$1200.00", sent[0].Data["amount"])
	assert.Equal(t, 1, sent[0].Data["level"])
	assert.Equal(t, staff.Email, sent[0].Data["created_by"])
}

func TestPendingNextLevelBeyondChainSendsNothing(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, map[string]any{orgdomain.SettingApprovalLevelsCount: 1})
	staff := env.Staff(t, org)
	env.Approver(t, org, 2)
	pr := env.Request(t, staff, "10")

	current := env.Reload(t, pr.ID)
	current.CurrentApprovalLevel = 1
	require.NoError(t, env.RequestRepo.Save(context.Background(), current))

	mail := &mailRecorder{}
	require.NoError(t, newNotifier(env, mail).Notify(context.Background(), pr.ID, notification.KindPendingNextLevel, nil))
	assert.Empty(t, mail.all())
}

func TestApprovedAndRejectedMailTheCreator(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, nil)
	staff := env.Staff(t, org)
	approver := env.Approver(t, org, 1)
	pr := env.Request(t, staff, "99.5")
	mail := &mailRecorder{}
	n := newNotifier(env, mail)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, pr.ID, notification.KindApproved, nil))
	require.NoError(t, n.Notify(ctx, pr.ID, notification.KindRejected, &approver.UserID))
	unknown := snowflake.ID(12345)
	require.NoError(t, n.Notify(ctx, pr.ID, notification.KindRejected, &unknown))

	sent := mail.all()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{staff.Email}, sent[0].To)
	assert.Equal(t, "Purchase Request Approved - Laptops", sent[0].Data["subject"])
	assert.Equal(t, "$99.50", sent[0].Data["amount"])
	assert.Equal(t, "Purchase Request Rejected - Laptops", sent[1].Data["subject"])
	assert.Equal(t, approver.Email, sent[1].Data["approver"])
	assert.Equal(t, "an approver", sent[2].Data["approver"])
}

func TestNotificationsDisabledForOrganization(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, map[string]any{orgdomain.SettingEmailNotificationsEnabled: false})
	staff := env.Staff(t, org)
	env.Approver(t, org, 1)
	pr := env.Request(t, staff, "10")

	mail := &mailRecorder{}
	require.NoError(t, newNotifier(env, mail).Notify(context.Background(), pr.ID, notification.KindApproved, nil))
	assert.Empty(t, mail.all())
}

func TestDeliveryFailureIsReturnedForRetry(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, nil)
	staff := env.Staff(t, org)
	pr := env.Request(t, staff, "10")

	boom := errors.New("smtp down")
	mail := &mailRecorder{fail: boom}
	err := newNotifier(env, mail).Notify(context.Background(), pr.ID, notification.KindApproved, nil)
	assert.ErrorIs(t, err, boom)
}

func TestHandleDecodesTaskArgs(t *testing.T) {
	env := testkit.New(t)
	org := env.Org(t, nil)
	staff := env.Staff(t, org)
	pr := env.Request(t, staff, "10")
	mail := &mailRecorder{}
	n := newNotifier(env, mail)

	require.NoError(t, n.Handle(context.Background(), tasks.NotificationArgs{RequestID: pr.ID, Kind: notification.KindApproved}))
	assert.Len(t, mail.all(), 1)

	assert.ErrorIs(t, n.Handle(context.Background(), "bogus"), tasks.ErrBadArgs)
	assert.ErrorIs(t, n.Notify(context.Background(), pr.ID, "sms", nil), notification.ErrUnknownKind)
	assert.NoError(t, n.Notify(context.Background(), snowflake.ID(1), notification.KindApproved, nil))
}
