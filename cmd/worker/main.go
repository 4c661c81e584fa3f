// Package main is the entry point of the Step Battle background worker.
//
// The worker evaluates every competition's posting schedule once per tick
// and posts leaderboards and reminders to the configured channels. Several
// workers may run side by side when Redis is configured; the posting lock
// keeps each occurrence from being announced twice.
package main

import (
	"go.uber.org/fx"

	stepfx "github.com/stepbattle/stepbattle/internal/fx"
)

func main() {
	fx.New(stepfx.WorkerModule).Run()
}
