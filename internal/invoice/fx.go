package invoice

import (
	"github.com/smallbiznis/cirrus/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(service.New),
)
