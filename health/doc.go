// Package health tracks the health of the claim store and the other
// dependencies of a dupguard process.
//
// A Monitor holds one Status per named dependency. Statuses are either set
// directly or produced by registered probes:
//
//	monitor := health.NewMonitor()
//	monitor.Register("store", store.Ping)
//
//	go monitor.Run(ctx, "dupguard", 15*time.Second)
//	mux.Handle("/healthz", monitor.Handler("dupguard"))
//
// # Health States
//
//   - healthy: the dependency answered
//   - degraded: the dependency works with reduced functionality
//   - unhealthy: the dependency did not answer
//
// Aggregate combines statuses: any unhealthy member makes the whole
// unhealthy, otherwise any degraded member makes it degraded.
//
// Probe errors are sanitized before they are stored, so statuses can be
// served to unauthenticated callers without leaking addresses or credentials.
package health
