package export

import "go.uber.org/fx"

var Module = fx.Module("invoice.export",
	fx.Provide(NewExporter),
)
