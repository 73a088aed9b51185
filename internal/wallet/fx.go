package wallet

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/loyara/internal/wallet/repository"
	"github.com/smallbiznis/loyara/internal/wallet/service"
)

// Module wires the wallet read service and repository.
var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
