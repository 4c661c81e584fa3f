// Package handlers contains reusable HTTP building blocks for the step
// battle API: dependency health checks and middleware.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("database", handlers.NewPingCheck(repo))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Authentication
//
// BearerAuth holds only a keyed BLAKE2b digest of the shared API secret and
// compares the digest of the presented token in constant time:
//
//	auth, err := handlers.NewBearerAuth(secret)
//	mux.Handle("/api/", auth.Middleware(api))
package handlers
