// Package domain holds the purchase request aggregate: the request itself,
// its line items, the append-only approval history and attached documents.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusDiscrepancy Status = "DISCREPANCY"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDiscrepancy:
		return true
	default:
		return false
	}
}

type ApprovalAction string

const (
	ActionApproved ApprovalAction = "APPROVED"
	ActionRejected ApprovalAction = "REJECTED"
)

type DocumentType string

const (
	DocumentProforma      DocumentType = "PROFORMA"
	DocumentPurchaseOrder DocumentType = "PO"
	DocumentReceipt       DocumentType = "RECEIPT"
)

type PurchaseRequest struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID                snowflake.ID    `gorm:"column:org_id;not null;index:ix_purchase_requests_org_created,priority:1" json:"org_id"`
	Title                string          `gorm:"type:text;not null" json:"title"`
	Description          string          `gorm:"type:text;not null" json:"description"`
	Amount               decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status               Status          `gorm:"type:text;not null;index" json:"status"`
	CreatedBy            snowflake.ID    `gorm:"column:created_by;not null;index" json:"created_by"`
	UpdatedBy            *snowflake.ID   `gorm:"column:updated_by" json:"updated_by,omitempty"`
	CurrentApprovalLevel int             `gorm:"column:current_approval_level;not null;default:0" json:"current_approval_level"`
	ProformaFileURL      *string         `gorm:"column:proforma_file_url;type:text" json:"proforma_file_url,omitempty"`
	PurchaseOrderFileURL *string         `gorm:"column:purchase_order_file_url;type:text" json:"purchase_order_file_url,omitempty"`
	ReceiptFileURL       *string         `gorm:"column:receipt_file_url;type:text" json:"receipt_file_url,omitempty"`
	CreatedAt            time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_purchase_requests_org_created,priority:2" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items     []RequestItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Approvals []Approval    `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"approvals,omitempty"`
	Documents []Document    `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

// TableName sets the database table name.
func (PurchaseRequest) TableName() string { return "purchase_requests" }

// CanBeUpdated is true only while pending and before the first decision of
// any kind has been recorded.
func (r PurchaseRequest) CanBeUpdated(approvalCount int64) bool {
	return r.Status == StatusPending && approvalCount == 0
}

// IsFinalLevel reports whether the chain of requiredLevels has been completed.
func (r PurchaseRequest) IsFinalLevel(requiredLevels int) bool {
	return r.CurrentApprovalLevel >= requiredLevels
}

type RequestItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	RequestID   snowflake.ID    `gorm:"column:request_id;not null;index" json:"request_id"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RequestItem) TableName() string { return "request_items" }

// ComputeTotal recomputes Total from Quantity and UnitPrice.
func (i *RequestItem) ComputeTotal() {
	i.Total = i.Quantity.Mul(i.UnitPrice).Round(2)
}

type Approval struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	RequestID     snowflake.ID   `gorm:"column:request_id;not null;uniqueIndex:ux_approvals_request_level,priority:1" json:"request_id"`
	ApproverID    snowflake.ID   `gorm:"column:approver_id;not null;index" json:"approver_id"`
	ApprovalLevel int            `gorm:"column:approval_level;not null;uniqueIndex:ux_approvals_request_level,priority:2" json:"approval_level"`
	Action        ApprovalAction `gorm:"type:text;not null" json:"action"`
	Comments      string         `gorm:"type:text" json:"comments"`
	Timestamp     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"timestamp"`
}

// TableName sets the database table name.
func (Approval) TableName() string { return "approvals" }

type Document struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	RequestID     snowflake.ID      `gorm:"column:request_id;not null;index:ix_documents_request_type,priority:1" json:"request_id"`
	DocumentType  DocumentType      `gorm:"column:document_type;type:text;not null;index:ix_documents_request_type,priority:2" json:"document_type"`
	FileURL       string            `gorm:"column:file_url;type:text;not null" json:"file_url"`
	ExtractedData datatypes.JSONMap `gorm:"column:extracted_data;type:jsonb;not null;default:'{}'" json:"extracted_data"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// LockKey names the per-request mutex shared by every state transition.
func LockKey(id snowflake.ID) string {
	return "procura:request:" + id.String()
}
