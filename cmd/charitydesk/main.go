package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/smallbiznis/charitydesk/internal/migration"
	"github.com/smallbiznis/charitydesk/internal/observability"
	"github.com/smallbiznis/charitydesk/internal/providers"
	"github.com/smallbiznis/charitydesk/internal/receipt/worker"
	"github.com/smallbiznis/charitydesk/internal/server"
	"github.com/smallbiznis/charitydesk/pkg/db"
	"go.uber.org/fx"
)

// The monolith serves the API and drains the receipt queue in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		providers.Module,
		worker.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
