package ledger

import (
	"github.com/iamafoodie/buddy/internal/ledger/repository"
	"github.com/iamafoodie/buddy/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
