package chat

import (
	"go.uber.org/fx"

	"github.com/iamafoodie/buddy/internal/chat/domain"
	"github.com/iamafoodie/buddy/internal/chat/repository"
	"github.com/iamafoodie/buddy/internal/chat/service"
)

var Module = fx.Module("chat.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideAnswerer),
	fx.Provide(service.New),
)

func provideAnswerer() domain.Answerer {
	return &domain.StaticAnswerer{
		Reply: "Dank voor je vraag! Buddy denkt even na en komt er zo op terug.",
	}
}
