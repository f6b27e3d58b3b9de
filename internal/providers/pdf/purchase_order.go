package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/procura/internal/apperror"
	docdomain "github.com/smallbiznis/procura/internal/document/domain"
)

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GeneratePurchaseOrder(ctx context.Context, po docdomain.PurchaseOrderData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Generation("Failed to generate purchase order", err)
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Purchase Order", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("PO number: "+po.PONumber, props.Text{Top: 0}),
			text.New("Date of issue: "+po.IssuedAt, props.Text{Top: 4}),
			text.New("Request: "+po.RequestID, props.Text{Top: 8}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Vendor", props.Text{Style: fontstyle.Bold}),
			text.New(orDash(po.VendorName), props.Text{Top: 5}),
			text.New(po.VendorAddress, props.Text{Top: 9}),
			text.New(po.VendorEmail, props.Text{Top: 20}),
		),
		col.New(6).Add(
			text.New(po.Title, props.Text{Style: fontstyle.Bold}),
			text.New(po.Description, props.Text{Top: 5, Size: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range po.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.UnitPrice, po.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.Total, po.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, money(po.TotalAmount, po.Currency), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if po.Terms != "" {
		m.AddRow(20,
			col.New(12).Add(
				text.New("Terms", props.Text{Style: fontstyle.Bold, Size: 9}),
				text.New(po.Terms, props.Text{Top: 5, Size: 9}),
			),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, apperror.Generation("Failed to generate purchase order", err)
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func money(v decimal.Decimal, currency string) string {
	s := v.StringFixed(2)
	if currency != "" {
		return currency + " " + s
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
