package payment

import (
	"github.com/iamafoodie/buddy/internal/payment/extract"
	"github.com/iamafoodie/buddy/internal/payment/repository"
	"github.com/iamafoodie/buddy/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(extract.New),
	fx.Provide(service.New),
)
