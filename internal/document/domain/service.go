package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
)

// Service runs the document pipeline behind the proforma.process,
// purchase_order.generate and receipt.process tasks. Each step appends a
// Document; none of them touch the approval history.
type Service interface {
	ProcessProforma(ctx context.Context, requestID snowflake.ID, fileURL string) (*prdomain.Document, error)
	// GeneratePurchaseOrder returns nil when the request has no proforma yet.
	GeneratePurchaseOrder(ctx context.Context, requestID snowflake.ID) (*prdomain.Document, error)
	// ProcessReceipt extracts the receipt and reconciles it against the
	// purchase order when one exists.
	ProcessReceipt(ctx context.Context, requestID snowflake.ID, fileURL string) (*prdomain.Document, error)
}

// PONumber derives the purchase order number from the request id.
func PONumber(requestID snowflake.ID) string {
	return fmt.Sprintf("PO-%s", requestID.String())
}

// BuildPurchaseOrder combines the request with its proforma. The proforma's
// vendor and lines win; the request's own items and amount fill in whatever
// the proforma lacks.
func BuildPurchaseOrder(pr *prdomain.PurchaseRequest, proforma ProformaData, issuedAt time.Time) PurchaseOrderData {
	po := PurchaseOrderData{
		PONumber:      PONumber(pr.ID),
		RequestID:     pr.ID.String(),
		Title:         pr.Title,
		Description:   pr.Description,
		IssuedAt:      issuedAt.UTC().Format("2006-01-02"),
		VendorName:    proforma.VendorName,
		VendorAddress: proforma.VendorAddress,
		VendorEmail:   proforma.VendorEmail,
		Items:         proforma.Items,
		TotalAmount:   proforma.TotalAmount,
		Currency:      proforma.Currency,
		Terms:         proforma.Terms,
	}

	if len(po.Items) == 0 {
		po.Items = make([]LineItem, 0, len(pr.Items))
		for _, item := range pr.Items {
			po.Items = append(po.Items, LineItem{
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Total:       item.Total,
			})
		}
	}
	if !po.TotalAmount.IsPositive() {
		po.TotalAmount = pr.Amount
	}
	return po
}
