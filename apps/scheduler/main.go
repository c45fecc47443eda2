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
	"github.com/smallbiznis/crosslist/internal/observability"
	"github.com/smallbiznis/crosslist/internal/poller"
	"github.com/smallbiznis/crosslist/internal/ratelimit"
	"github.com/smallbiznis/crosslist/internal/saleevent"
	"github.com/smallbiznis/crosslist/internal/scheduler"
	"github.com/smallbiznis/crosslist/pkg/db"
	"go.uber.org/fx"
)

// The scheduler binary runs the background sweep only: polling, pending job
// execution, retries and the recovery sweep. No HTTP surface besides what
// observability exposes elsewhere.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		ratelimit.Module,
		circuitbreaker.Module,
		marketplace.Module,
		listing.Module,
		saleevent.Module,
		audit.Module,
		delisting.Module,
		poller.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
