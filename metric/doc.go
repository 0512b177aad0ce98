// Package metric owns the Prometheus registry of a dupguard process.
//
// Components register their collectors through the Registrar interface, keyed
// by "service.metric" so a second registration of the same metric fails with a
// classified invalid error instead of panicking:
//
//	reg := metric.NewMetricsRegistry()
//	coord, err := guard.NewCoordinator(store, guard.WithMetrics(reg))
//
// The registry is served by Handler, which enables OpenMetrics negotiation.
package metric
