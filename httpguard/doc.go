// Package httpguard applies guard policies to HTTP handlers.
//
// Each guarded endpoint is described by a Route: the operation signature,
// its policy and an ArgsFunc that extracts the call arguments from the
// request. The request path becomes the operation path of the claim.
// A duplicate call is answered with 409 Conflict and the policy's rejection
// message; a claim store failure with 503 Service Unavailable. In both cases
// the handler is not run.
//
// Middleware is provided for net/http, gin and echo:
//
//	g := httpguard.New(coordinator)
//	mux.Handle("GET /test", g.Handler(route, handler))
//	router.GET("/test", g.Gin(route), ginHandler)
//	e.GET("/test", echoHandler, g.Echo(route))
package httpguard
