// Package main is the entry point of the Step Battle Discord bot.
//
// The process answers slash commands over the Discord gateway and serves
// the step ingestion API and health endpoints over HTTP. Scheduled
// leaderboard posts are handled by cmd/worker.
package main

import (
	"go.uber.org/fx"

	stepfx "github.com/stepbattle/stepbattle/internal/fx"
)

func main() {
	fx.New(stepfx.BotModule).Run()
}
