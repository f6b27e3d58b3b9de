package pdf

import (
	"context"
	"io"

	docdomain "github.com/smallbiznis/procura/internal/document/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders procurement documents.
type Provider interface {
	GeneratePurchaseOrder(ctx context.Context, data docdomain.PurchaseOrderData) (io.Reader, error)
}
