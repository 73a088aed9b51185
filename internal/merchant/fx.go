package merchant

import (
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	"github.com/smallbiznis/loyara/internal/merchant/service"
	"github.com/smallbiznis/loyara/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("merchant.service",
	fx.Provide(repository.ProvideStore[merchantdomain.Merchant]),
	fx.Provide(service.New),
)
