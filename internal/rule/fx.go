package rule

import (
	"github.com/smallbiznis/loyara/internal/cache"
	"github.com/smallbiznis/loyara/internal/rule/repository"
	"github.com/smallbiznis/loyara/internal/rule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rule.service",
	fx.Provide(cache.NewRuleResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
