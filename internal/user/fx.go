package user

import (
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	"github.com/smallbiznis/loyara/internal/user/service"
	"github.com/smallbiznis/loyara/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.ProvideStore[userdomain.User]),
	fx.Provide(service.New),
)
