package invoice

import (
	"github.com/smallbiznis/hourbill/internal/invoice/repository"
	"github.com/smallbiznis/hourbill/internal/invoice/sequence"
	"github.com/smallbiznis/hourbill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(sequence.NewAllocator),
	fx.Provide(sequence.ProvideSeriesLock),
	fx.Provide(service.NewService),
)
