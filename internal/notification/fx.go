package notification

import (
	"github.com/smallbiznis/procura/internal/tasks"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(NewNotifier),
	fx.Invoke(register),
)

func register(registry *tasks.Registry, n *Notifier) {
	registry.Register(tasks.TaskSendNotification, n.Handle)
}
