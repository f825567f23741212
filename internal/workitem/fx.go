package workitem

import (
	"github.com/smallbiznis/hourbill/internal/workitem/repository"
	"github.com/smallbiznis/hourbill/internal/workitem/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workitem.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
