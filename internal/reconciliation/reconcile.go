// Package reconciliation compares extracted receipt data against the
// purchase order it should settle. It performs no I/O.
package reconciliation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	documentdomain "github.com/smallbiznis/procura/internal/document/domain"
)

type DiscrepancyType string

const (
	SellerMismatch          DiscrepancyType = "seller_mismatch"
	ItemCountMismatch       DiscrepancyType = "item_count_mismatch"
	ItemDescriptionMismatch DiscrepancyType = "item_description_mismatch"
	ItemQuantityMismatch    DiscrepancyType = "item_quantity_mismatch"
	ItemPriceMismatch       DiscrepancyType = "item_price_mismatch"
	TotalAmountMismatch     DiscrepancyType = "total_amount_mismatch"
)

type Discrepancy struct {
	Type    DiscrepancyType `json:"type"`
	Message string          `json:"message"`
	// Item is the 1-based line number for item-level discrepancies.
	Item int `json:"item,omitempty"`
}

type Result struct {
	IsValid           bool                             `json:"is_valid"`
	Discrepancies     []Discrepancy                    `json:"discrepancies"`
	ReceiptData       documentdomain.ReceiptData       `json:"receipt_data"`
	PurchaseOrderData documentdomain.PurchaseOrderData `json:"po_data"`
}

// Tolerances bound the accepted differences. Price and total tolerances are
// relative to the purchase order value, quantity tolerance is absolute.
type Tolerances struct {
	Price    decimal.Decimal
	Total    decimal.Decimal
	Quantity decimal.Decimal
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		Price:    decimal.RequireFromString("0.05"),
		Total:    decimal.RequireFromString("0.05"),
		Quantity: decimal.RequireFromString("0.01"),
	}
}

// TolerancesFromFloat builds tolerances from configuration values.
func TolerancesFromFloat(price, total, quantity float64) Tolerances {
	return Tolerances{
		Price:    decimal.NewFromFloat(price),
		Total:    decimal.NewFromFloat(total),
		Quantity: decimal.NewFromFloat(quantity),
	}
}

// Reconcile lists every discrepancy between receipt and po. All comparisons
// are strict: a difference exactly at the tolerance is accepted.
func Reconcile(receipt documentdomain.ReceiptData, po documentdomain.PurchaseOrderData, tol Tolerances) Result {
	discrepancies := make([]Discrepancy, 0)

	if normalize(receipt.SellerName) != normalize(po.VendorName) {
		discrepancies = append(discrepancies, Discrepancy{
			Type:    SellerMismatch,
			Message: fmt.Sprintf("Seller name mismatch: Receipt shows '%s' but PO shows '%s'", receipt.SellerName, po.VendorName),
		})
	}

	if len(receipt.Items) != len(po.Items) {
		discrepancies = append(discrepancies, Discrepancy{
			Type:    ItemCountMismatch,
			Message: fmt.Sprintf("Item count mismatch: Receipt has %d items but PO has %d items", len(receipt.Items), len(po.Items)),
		})
	}

	n := min(len(receipt.Items), len(po.Items))
	for i := 0; i < n; i++ {
		got, want := receipt.Items[i], po.Items[i]
		line := i + 1

		if normalize(got.Description) != normalize(want.Description) {
			discrepancies = append(discrepancies, Discrepancy{
				Type:    ItemDescriptionMismatch,
				Message: fmt.Sprintf("Item %d description mismatch", line),
				Item:    line,
			})
		}

		if got.Quantity.Sub(want.Quantity).Abs().GreaterThan(tol.Quantity) {
			discrepancies = append(discrepancies, Discrepancy{
				Type:    ItemQuantityMismatch,
				Message: fmt.Sprintf("Item %d quantity mismatch: Receipt shows %s but PO shows %s", line, got.Quantity, want.Quantity),
				Item:    line,
			})
		}

		if exceedsRelative(got.UnitPrice, want.UnitPrice, tol.Price) {
			discrepancies = append(discrepancies, Discrepancy{
				Type:    ItemPriceMismatch,
				Message: fmt.Sprintf("Item %d price mismatch: Receipt shows %s but PO shows %s", line, got.UnitPrice, want.UnitPrice),
				Item:    line,
			})
		}
	}

	if exceedsRelative(receipt.TotalAmount, po.TotalAmount, tol.Total) {
		discrepancies = append(discrepancies, Discrepancy{
			Type:    TotalAmountMismatch,
			Message: fmt.Sprintf("Total amount mismatch: Receipt shows %s but PO shows %s", receipt.TotalAmount, po.TotalAmount),
		})
	}

	return Result{
		IsValid:           len(discrepancies) == 0,
		Discrepancies:     discrepancies,
		ReceiptData:       receipt,
		PurchaseOrderData: po,
	}
}

// exceedsRelative reports |got-ref|/ref > tolerance. A non-positive reference
// disables the check.
func exceedsRelative(got, ref, tolerance decimal.Decimal) bool {
	if !ref.IsPositive() {
		return false
	}
	// |got-ref| > tolerance*ref avoids rounding from division
	return got.Sub(ref).Abs().GreaterThan(tolerance.Mul(ref))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
