package document

import (
	"context"

	"github.com/smallbiznis/procura/internal/document/domain"
	"github.com/smallbiznis/procura/internal/document/service"
	prdomain "github.com/smallbiznis/procura/internal/purchaserequest/domain"
	"github.com/smallbiznis/procura/internal/tasks"
	"github.com/smallbiznis/procura/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("document.service",
	fx.Provide(repository.ProvideStore[prdomain.Document]),
	fx.Provide(service.NewService),
	fx.Invoke(RegisterTasks),
)

// RegisterTasks binds the document pipeline to its task names.
func RegisterTasks(registry *tasks.Registry, svc domain.Service) {
	registry.Register(tasks.TaskProcessProforma, func(ctx context.Context, args ...any) error {
		a, err := tasks.Arg[tasks.DocumentArgs](args, 0)
		if err != nil {
			return err
		}
		_, err = svc.ProcessProforma(ctx, a.RequestID, a.FileURL)
		return err
	})
	registry.Register(tasks.TaskGeneratePurchaseOrder, func(ctx context.Context, args ...any) error {
		a, err := tasks.Arg[tasks.PurchaseOrderArgs](args, 0)
		if err != nil {
			return err
		}
		_, err = svc.GeneratePurchaseOrder(ctx, a.RequestID)
		return err
	})
	registry.Register(tasks.TaskProcessReceipt, func(ctx context.Context, args ...any) error {
		a, err := tasks.Arg[tasks.DocumentArgs](args, 0)
		if err != nil {
			return err
		}
		_, err = svc.ProcessReceipt(ctx, a.RequestID, a.FileURL)
		return err
	})
}
