package service

import (
	"context"

	"github.com/smallbiznis/procura/internal/clock"
	"github.com/smallbiznis/procura/internal/purchaserequest/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"github.com/smallbiznis/procura/internal/visibility"
	"gorm.io/gorm"
)

func (s *service) Statistics(ctx context.Context, principal userdomain.Principal) (domain.Statistics, error) {
	stats := domain.Statistics{Role: principal.Role}

	switch principal.Role {
	case userdomain.RoleStaff:
		return stats, s.staffStatistics(ctx, principal, &stats)
	case userdomain.RoleApprover:
		return stats, s.approverStatistics(ctx, principal, &stats)
	case userdomain.RoleFinance:
		return stats, s.financeStatistics(ctx, principal, &stats)
	default:
		return domain.Statistics{}, domain.ErrStatisticsForbidden
	}
}

func (s *service) staffStatistics(ctx context.Context, principal userdomain.Principal, stats *domain.Statistics) error {
	owned := visibility.Owned(principal)

	total, err := s.repo.Count(ctx, owned)
	if err != nil {
		return err
	}
	pending, err := s.repo.Count(ctx, and(owned, withStatus(domain.StatusPending)))
	if err != nil {
		return err
	}
	approved, err := s.repo.Count(ctx, and(owned, withStatus(domain.StatusApproved)))
	if err != nil {
		return err
	}
	rejected, err := s.repo.Count(ctx, and(owned, withStatus(domain.StatusRejected)))
	if err != nil {
		return err
	}
	amount, err := s.repo.SumAmount(ctx, and(owned, withStatus(domain.StatusApproved)))
	if err != nil {
		return err
	}

	stats.TotalRequests = &total
	stats.PendingApproval = &pending
	stats.Approved = &approved
	stats.Rejected = &rejected
	stats.TotalAmount = &amount
	return nil
}

func (s *service) approverStatistics(ctx context.Context, principal userdomain.Principal, stats *domain.Statistics) error {
	pendingMine, err := s.repo.Count(ctx, visibility.Actionable(principal))
	if err != nil {
		return err
	}

	monthStart := clock.StartOfMonth(s.clock.Now())
	approvedAction := domain.ActionApproved
	rejectedAction := domain.ActionRejected

	approved, err := s.repo.CountApprovalsBy(ctx, principal.UserID, &approvedAction, &monthStart)
	if err != nil {
		return err
	}
	rejected, err := s.repo.CountApprovalsBy(ctx, principal.UserID, &rejectedAction, &monthStart)
	if err != nil {
		return err
	}
	reviewed, err := s.repo.CountApprovalsBy(ctx, principal.UserID, nil, nil)
	if err != nil {
		return err
	}

	stats.PendingMyAction = &pendingMine
	stats.ApprovedThisMonth = &approved
	stats.RejectedThisMonth = &rejected
	stats.TotalReviewed = &reviewed
	return nil
}

// financeStatistics only counts APPROVED requests, so finance_can_see_all
// does not change the figures.
func (s *service) financeStatistics(ctx context.Context, principal userdomain.Principal, stats *domain.Statistics) error {
	approvedScope := and(visibility.Organization(principal), withStatus(domain.StatusApproved))

	approved, err := s.repo.Count(ctx, approvedScope)
	if err != nil {
		return err
	}
	amount, err := s.repo.SumAmount(ctx, approvedScope)
	if err != nil {
		return err
	}
	pendingPayments, err := s.repo.Count(ctx, and(approvedScope, receiptSubmitted(false)))
	if err != nil {
		return err
	}
	receiptsPending, err := s.repo.Count(ctx, and(approvedScope, receiptSubmitted(true)))
	if err != nil {
		return err
	}

	stats.TotalApprovedRequests = &approved
	stats.TotalAmountApproved = &amount
	stats.PendingPayments = &pendingPayments
	stats.ReceiptsPending = &receiptsPending
	return nil
}

func and(scopes ...func(*gorm.DB) *gorm.DB) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, scope := range scopes {
			db = scope(db)
		}
		return db
	}
}

func withStatus(status domain.Status) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("purchase_requests.status = ?", status)
	}
}

func receiptSubmitted(submitted bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if submitted {
			return db.Where("purchase_requests.receipt_file_url IS NOT NULL")
		}
		return db.Where("purchase_requests.receipt_file_url IS NULL")
	}
}
