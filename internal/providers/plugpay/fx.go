package plugpay

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/payment/domain"
)

var Module = fx.Module("providers.plugpay",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) domain.OrderLookup {
	if cfg.Payment.APIToken == "" {
		return &NoOpProvider{}
	}
	return NewClient(Config{
		BaseURL:        cfg.Payment.APIBaseURL,
		APIToken:       cfg.Payment.APIToken,
		DefaultCredits: cfg.Payment.DefaultCredits,
	}, log)
}
