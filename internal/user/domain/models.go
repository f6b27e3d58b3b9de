// Package domain contains the principal model shared by every procurement
// component.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleStaff    Role = "STAFF"
	RoleApprover Role = "APPROVER"
	RoleFinance  Role = "FINANCE"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleApprover, RoleFinance:
		return true
	default:
		return false
	}
}

// User represents a member of an organization.
type User struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email          string        `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	FirstName      string        `gorm:"type:text" json:"first_name"`
	LastName       string        `gorm:"type:text" json:"last_name"`
	OrganizationID *snowflake.ID `gorm:"column:organization_id;index:ix_users_org_role_level,priority:1" json:"organization_id,omitempty"`
	Role           Role          `gorm:"type:text;not null;index:ix_users_org_role_level,priority:2" json:"role"`
	ApprovalLevel  *int          `gorm:"column:approval_level;index:ix_users_org_role_level,priority:3" json:"approval_level,omitempty"`
	IsActive       bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Validate enforces that approval_level is set exactly when the role is APPROVER.
func (u User) Validate() error {
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	if u.Role == RoleApprover {
		if u.ApprovalLevel == nil {
			return ErrApprovalLevelRequired
		}
		if *u.ApprovalLevel < 1 {
			return ErrInvalidApprovalLevel
		}
		return nil
	}
	if u.ApprovalLevel != nil {
		return ErrApprovalLevelNotAllowed
	}
	return nil
}

// Principal is the authenticated actor passed into every core operation.
// The organization has already been resolved by the caller.
type Principal struct {
	UserID        snowflake.ID
	OrgID         snowflake.ID
	Email         string
	Role          Role
	ApprovalLevel *int
}

// Level returns the approval level, or 0 for principals without one.
func (p Principal) Level() int {
	if p.ApprovalLevel == nil {
		return 0
	}
	return *p.ApprovalLevel
}

func (u User) Principal() (Principal, bool) {
	if u.OrganizationID == nil {
		return Principal{}, false
	}
	return Principal{
		UserID:        u.ID,
		OrgID:         *u.OrganizationID,
		Email:         u.Email,
		Role:          u.Role,
		ApprovalLevel: u.ApprovalLevel,
	}, true
}
