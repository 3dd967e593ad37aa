package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cirrus/internal/clock"
	"github.com/smallbiznis/cirrus/internal/config"
	"github.com/smallbiznis/cirrus/internal/migration"
	"github.com/smallbiznis/cirrus/internal/observability"
	"github.com/smallbiznis/cirrus/internal/scheduler"
	"github.com/smallbiznis/cirrus/internal/server"
	"github.com/smallbiznis/cirrus/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		scheduler.Module,
	).Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
