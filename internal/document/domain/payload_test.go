package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadSurvivesJSONMap(t *testing.T) {
	po := PurchaseOrderData{
		PONumber:   "PO-0001",
		VendorName: "Acme",
		Items: []LineItem{{
			Description: "Laptop",
			Quantity:    decimal.RequireFromString("2"),
			UnitPrice:   decimal.RequireFromString("749.99"),
			Total:       decimal.RequireFromString("1499.98"),
		}},
		TotalAmount: decimal.RequireFromString("1499.98"),
	}

	m, err := ToJSONMap(po)
	require.NoError(t, err)
	assert.Equal(t, "Acme", m["vendor_name"])

	var back PurchaseOrderData
	require.NoError(t, FromJSONMap(m, &back))
	assert.True(t, back.TotalAmount.Equal(po.TotalAmount))
	require.Len(t, back.Items, 1)
	assert.True(t, back.Items[0].UnitPrice.Equal(decimal.RequireFromString("749.99")))
}

func TestReceiptDecodesNumericJSON(t *testing.T) {
	var r ReceiptData
	require.NoError(t, FromJSONMap(map[string]any{
		"seller_name":  "Acme",
		"total_amount": 105.5,
		"items":        []any{map[string]any{"description": "x", "quantity": 1, "unit_price": nil}},
	}, &r))
	assert.Equal(t, "105.5", r.TotalAmount.String())
	assert.True(t, r.Items[0].UnitPrice.IsZero())
}
