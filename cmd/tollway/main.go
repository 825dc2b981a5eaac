package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tollwaylabs/tollway/internal/clock"
	"github.com/tollwaylabs/tollway/internal/migration"
	"github.com/tollwaylabs/tollway/internal/observability"
	"github.com/tollwaylabs/tollway/internal/server"
	"github.com/tollwaylabs/tollway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
