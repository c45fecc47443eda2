package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crosslist/internal/audit"
	"github.com/smallbiznis/crosslist/internal/circuitbreaker"
	"github.com/smallbiznis/crosslist/internal/clock"
	"github.com/smallbiznis/crosslist/internal/config"
	"github.com/smallbiznis/crosslist/internal/delisting"
	"github.com/smallbiznis/crosslist/internal/listing"
	"github.com/smallbiznis/crosslist/internal/marketplace"
	"github.com/smallbiznis/crosslist/internal/migration"
	"github.com/smallbiznis/crosslist/internal/observability"
	"github.com/smallbiznis/crosslist/internal/poller"
	"github.com/smallbiznis/crosslist/internal/ratelimit"
	"github.com/smallbiznis/crosslist/internal/saleevent"
	"github.com/smallbiznis/crosslist/internal/scheduler"
	"github.com/smallbiznis/crosslist/internal/server"
	"github.com/smallbiznis/crosslist/internal/webhook"
	"github.com/smallbiznis/crosslist/pkg/db"
	"go.uber.org/fx"
)

// The monolith runs the whole pipeline in one process: webhook ingestion,
// the scheduler sweep and the internal operator API.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		ratelimit.Module,
		circuitbreaker.Module,
		marketplace.Module,
		listing.Module,
		saleevent.Module,
		audit.Module,
		delisting.Module,
		poller.Module,
		webhook.Module,

		scheduler.Module,
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
