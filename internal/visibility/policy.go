// Package visibility decides which purchase requests a principal may see.
//
// Every scope starts from the principal's organization and then narrows by
// role. Roles are dispatched in a single switch; an unknown role sees nothing.
package visibility

import (
	orgdomain "github.com/smallbiznis/procura/internal/organization/domain"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	userdomain "github.com/smallbiznis/procura/internal/user/domain"
	"gorm.io/gorm"
)

// Scope restricts a purchase_requests query to what principal may see.
func Scope(principal userdomain.Principal, settings orgdomain.Settings) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("purchase_requests.org_id = ?", principal.OrgID)

		switch principal.Role {
		case userdomain.RoleStaff:
			return db.Where("purchase_requests.created_by = ?", principal.UserID)
		case userdomain.RoleApprover:
			if principal.Level() < 1 {
				return db.Where(reviewedByClause, principal.UserID)
			}
			actionable, args := actionableClause(principal.Level())
			return db.Where(
				"(("+actionable+") OR "+reviewedByClause+")",
				append(args, principal.UserID)...,
			)
		case userdomain.RoleFinance:
			if settings.FinanceCanSeeAll() {
				return db
			}
			return db.Where("purchase_requests.status = ?", prdomain.StatusApproved)
		default:
			return db.Where("1 = 0")
		}
	}
}

// Actionable restricts to PENDING requests waiting on the principal's level.
// Principals other than approvers have nothing actionable.
func Actionable(principal userdomain.Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("purchase_requests.org_id = ?", principal.OrgID)
		if principal.Role != userdomain.RoleApprover || principal.Level() < 1 {
			return db.Where("1 = 0")
		}
		clause, args := actionableClause(principal.Level())
		return db.Where(clause, args...)
	}
}

// Owned restricts to requests created by the principal.
func Owned(principal userdomain.Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("purchase_requests.org_id = ? AND purchase_requests.created_by = ?", principal.OrgID, principal.UserID)
	}
}

// Organization restricts to the principal's organization only.
func Organization(principal userdomain.Principal) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("purchase_requests.org_id = ?", principal.OrgID)
	}
}

const approvedAtLevel = `EXISTS (SELECT 1 FROM approvals a
	WHERE a.request_id = purchase_requests.id AND a.approval_level = ? AND a.action = ?)`

const reviewedByClause = `EXISTS (SELECT 1 FROM approvals r
	WHERE r.request_id = purchase_requests.id AND r.approver_id = ?)`

func actionableClause(level int) (string, []any) {
	if level <= 1 {
		return "purchase_requests.status = ? AND NOT " + approvedAtLevel,
			[]any{prdomain.StatusPending, 1, prdomain.ActionApproved}
	}
	return "purchase_requests.status = ? AND " + approvedAtLevel + " AND NOT " + approvedAtLevel,
		[]any{prdomain.StatusPending, level - 1, prdomain.ActionApproved, level, prdomain.ActionApproved}
}
