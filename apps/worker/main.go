package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/charitydesk/internal/clock"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/smallbiznis/charitydesk/internal/donation"
	"github.com/smallbiznis/charitydesk/internal/observability"
	"github.com/smallbiznis/charitydesk/internal/providers"
	"github.com/smallbiznis/charitydesk/internal/ratelimit"
	"github.com/smallbiznis/charitydesk/internal/receipt"
	"github.com/smallbiznis/charitydesk/internal/receipt/worker"
	"github.com/smallbiznis/charitydesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		donation.Module,
		receipt.Module,
		providers.Module,
		ratelimit.Module,
		worker.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
