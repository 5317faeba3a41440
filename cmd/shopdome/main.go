package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/internal/migration"
	"github.com/shopdome/commerce/internal/observability"
	"github.com/shopdome/commerce/internal/server"
	"github.com/shopdome/commerce/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
