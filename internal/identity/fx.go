package identity

import (
	"github.com/iamafoodie/buddy/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(func(cfg config.Config) *Normalizer {
		return NewNormalizer(cfg.Identity)
	}),
)
