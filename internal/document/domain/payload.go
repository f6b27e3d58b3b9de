// Package domain defines the structured payloads exchanged with the
// extraction service and stored on Document rows.
package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

type ProformaData struct {
	VendorName    string          `json:"vendor_name"`
	VendorAddress string          `json:"vendor_address,omitempty"`
	VendorEmail   string          `json:"vendor_email,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	Terms         string          `json:"terms,omitempty"`
	Validity      string          `json:"validity,omitempty"`
}

// PurchaseOrderData is what the generated purchase order commits to. It is
// derived from the proforma and is the reference side of reconciliation.
type PurchaseOrderData struct {
	PONumber      string          `json:"po_number"`
	RequestID     string          `json:"request_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	IssuedAt      string          `json:"issued_at"`
	VendorName    string          `json:"vendor_name"`
	VendorAddress string          `json:"vendor_address,omitempty"`
	VendorEmail   string          `json:"vendor_email,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	Terms         string          `json:"terms,omitempty"`
}

type ReceiptData struct {
	SellerName    string          `json:"seller_name"`
	SellerAddress string          `json:"seller_address,omitempty"`
	Items         []LineItem      `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	Date          string          `json:"date,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

// ToJSONMap converts a payload into the form stored in Document.ExtractedData.
func ToJSONMap(v any) (datatypes.JSONMap, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := datatypes.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromJSONMap decodes a stored payload into v.
func FromJSONMap(m datatypes.JSONMap, v any) error {
	raw, err := json.Marshal(map[string]any(m))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
