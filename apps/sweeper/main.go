package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/loyara/internal/clock"
	"github.com/smallbiznis/loyara/internal/config"
	"github.com/smallbiznis/loyara/internal/expiry"
	"github.com/smallbiznis/loyara/internal/ledger"
	"github.com/smallbiznis/loyara/internal/merchant"
	"github.com/smallbiznis/loyara/internal/observability"
	"github.com/smallbiznis/loyara/internal/rule"
	"github.com/smallbiznis/loyara/internal/wallet"
	"github.com/smallbiznis/loyara/pkg/db"
)

// Expiry sweeper: no HTTP surface, just the batch retirement loop.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		merchant.Module,
		rule.Module,
		wallet.Module,
		ledger.Module,
		expiry.Module,
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
