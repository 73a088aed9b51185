package ledger

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/loyara/internal/ledger/repository"
	"github.com/smallbiznis/loyara/internal/ledger/service"
)

// Module wires the ledger transaction coordinator.
var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
