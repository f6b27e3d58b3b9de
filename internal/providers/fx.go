package providers

import (
	"github.com/smallbiznis/procura/internal/providers/email"
	"github.com/smallbiznis/procura/internal/providers/extraction"
	"github.com/smallbiznis/procura/internal/providers/pdf"
	"github.com/smallbiznis/procura/internal/providers/storage"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	extraction.Module,
	pdf.Module,
	storage.Module,
)
