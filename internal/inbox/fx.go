package inbox

import (
	"github.com/iamafoodie/buddy/internal/inbox/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("inbox",
	fx.Provide(repository.Provide),
)
