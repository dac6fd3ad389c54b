package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/watchkeep/watchkeep/internal/alert"
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/config"
	"github.com/watchkeep/watchkeep/internal/ledger"
	"github.com/watchkeep/watchkeep/internal/manager"
	"github.com/watchkeep/watchkeep/internal/migration"
	"github.com/watchkeep/watchkeep/internal/monitor"
	obsmetrics "github.com/watchkeep/watchkeep/internal/observability/metrics"
	"github.com/watchkeep/watchkeep/internal/security"
	"github.com/watchkeep/watchkeep/internal/server"
	"github.com/watchkeep/watchkeep/pkg/db"
	"github.com/watchkeep/watchkeep/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		obsmetrics.Module,
		security.Module,

		migration.Module,
		alert.Module,
		ledger.Module,
		manager.Module,
		monitor.Module,
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
