package workflow

import (
	"github.com/smallbiznis/procura/internal/workflow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workflow.service",
	fx.Provide(service.NewService),
)
