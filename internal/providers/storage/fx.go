package storage

import "go.uber.org/fx"

var Module = fx.Module("providers.storage",
	fx.Provide(
		fx.Annotate(NewLocal, fx.As(new(Storage))),
	),
)

// Folder helpers for the procure-to-pay layout.
func ReceiptFolder(orgID string) string       { return "procure-to-pay/" + orgID + "/receipts" }
func ProformaFolder(orgID string) string      { return "procure-to-pay/" + orgID + "/proformas" }
func PurchaseOrderFolder(orgID string) string { return "procure-to-pay/" + orgID + "/purchase_orders" }
