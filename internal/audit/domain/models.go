package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionRequestCreated      = "purchase_request.created"
	ActionRequestUpdated      = "purchase_request.updated"
	ActionRequestApproved     = "purchase_request.approved"
	ActionRequestRejected     = "purchase_request.rejected"
	ActionProformaAttached    = "purchase_request.proforma_attached"
	ActionReceiptSubmitted    = "purchase_request.receipt_submitted"
	ActionReceiptReconciled   = "purchase_request.receipt_reconciled"
	ActionPurchaseOrderIssued = "purchase_request.purchase_order_issued"
	ActionSettingsUpdated     = "organization.settings_updated"
)

const (
	TargetPurchaseRequest = "purchase_request"
	TargetOrganization    = "organization"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"column:org_id;not null;index:ix_audit_logs_org_created,priority:1" json:"org_id"`
	ActorType  string            `gorm:"column:actor_type;type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"column:actor_id;type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"column:target_type;type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"column:target_id;type:text;index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_org_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
