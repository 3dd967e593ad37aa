package invoicerun

import (
	"github.com/smallbiznis/cirrus/internal/invoicerun/repository"
	"github.com/smallbiznis/cirrus/internal/invoicerun/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoicerun.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
