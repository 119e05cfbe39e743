package whatsapp

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iamafoodie/buddy/internal/config"
)

var Module = fx.Module("providers.whatsapp",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.WhatsApp.AccessToken == "" || cfg.WhatsApp.PhoneID == "" {
		return &NoOpProvider{}
	}
	return NewGraph(Config{
		APIVersion:  cfg.WhatsApp.APIVersion,
		PhoneID:     cfg.WhatsApp.PhoneID,
		AccessToken: cfg.WhatsApp.AccessToken,
	}, log)
}
