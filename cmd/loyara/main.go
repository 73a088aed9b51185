package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/loyara/internal/clock"
	"github.com/smallbiznis/loyara/internal/config"
	"github.com/smallbiznis/loyara/internal/expiry"
	"github.com/smallbiznis/loyara/internal/migration"
	"github.com/smallbiznis/loyara/internal/observability"
	"github.com/smallbiznis/loyara/internal/server"
	"github.com/smallbiznis/loyara/pkg/db"
)

// The monolith: member API, admin API, and the expiry sweeper in one
// process. The apps/ entrypoints split these for larger deployments.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
		expiry.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
