package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/c360/dupguard/guard"
	"github.com/c360/dupguard/httpguard"
	"github.com/c360/dupguard/paramnames"
)

// Foobar is the request body of the POST demo endpoints.
type Foobar struct {
	Foo string `json:"foo"`
	Bar string `json:"bar"`
}

// Operation signatures of the demo endpoints
const (
	sigGet                   = "FoobarController.Get(foo, bar string)"
	sigPost                  = "FoobarController.Post(foobar Foobar)"
	sigGetSpel               = "FoobarController.GetSpel(foo, bar string)"
	sigPostSpel              = "FoobarController.PostSpel(foobar Foobar)"
	sigNoParams              = "FoobarController.NoParams()"
	sigTermination           = "FoobarController.GetTermination(foo, bar string)"
	sigTerminationException  = "FoobarController.GetTerminationException(foo, bar string)"
	sigTerminationLongTTL    = "FoobarController.GetTerminationLongTTL(foo, bar string)"
	terminationExceptionText = "termination handler failed"
)

var errTermination = errors.New(terminationExceptionText)

// endpoint is one demo route: where it is served, how it is guarded and what
// it answers.
type endpoint struct {
	Method string
	Path   string
	Route  httpguard.Route
	// Handle computes the response body from the guarded arguments.
	Handle func(args []any) (any, error)
}

// declareDemoParams registers the argument names of the demo operations.
func declareDemoParams(decls *paramnames.Declarations) {
	decls.MustDeclare(sigGet, "foo", "bar")
	decls.MustDeclare(sigPost, "foobar")
	decls.MustDeclare(sigGetSpel, "foo", "bar")
	decls.MustDeclare(sigPostSpel, "foobar")
	decls.MustDeclare(sigTermination, "foo", "bar")
	decls.MustDeclare(sigTerminationException, "foo", "bar")
	decls.MustDeclare(sigTerminationLongTTL, "foo", "bar")
}

func demoEndpoints() []endpoint {
	fooBar := httpguard.QueryArgs("foo", "bar")
	body := httpguard.JSONBody[Foobar]()
	base := guard.DefaultPolicy()
	releasing := base.WithReleaseOnCompletion(true)

	return []endpoint{
		{
			Method: http.MethodGet, Path: "/test",
			Route:  httpguard.Route{Signature: sigGet, Policy: base, Args: fooBar},
			Handle: concat,
		},
		{
			Method: http.MethodPost, Path: "/test",
			Route:  httpguard.Route{Signature: sigPost, Policy: base, Args: body},
			Handle: echoBody,
		},
		{
			Method: http.MethodGet, Path: "/test/spel",
			Route:  httpguard.Route{Signature: sigGetSpel, Policy: base.WithKeyExpression("#foo"), Args: fooBar},
			Handle: concat,
		},
		{
			Method: http.MethodPost, Path: "/test/spel",
			Route:  httpguard.Route{Signature: sigPostSpel, Policy: base.WithKeyExpression("#foobar.bar"), Args: body},
			Handle: echoBody,
		},
		{
			Method: http.MethodGet, Path: "/test/no-params",
			Route:  httpguard.Route{Signature: sigNoParams, Policy: base, Args: httpguard.NoArgs},
			Handle: func([]any) (any, error) { return "no-params", nil },
		},
		{
			Method: http.MethodGet, Path: "/test/termination",
			Route:  httpguard.Route{Signature: sigTermination, Policy: releasing, Args: fooBar},
			Handle: concat,
		},
		{
			Method: http.MethodGet, Path: "/test/termination/exception",
			Route: httpguard.Route{
				Signature: sigTerminationException,
				Policy:    releasing.WithTTL(200 * time.Second),
				Args:      fooBar,
			},
			Handle: func([]any) (any, error) { return nil, errTermination },
		},
		{
			Method: http.MethodGet, Path: "/test/termination/long-ttl",
			Route: httpguard.Route{
				Signature: sigTerminationLongTTL,
				Policy:    releasing.WithTTL(200 * time.Second),
				Args:      fooBar,
			},
			Handle: concat,
		},
	}
}

// concat answers foo+bar; a missing parameter contributes nothing.
func concat(args []any) (any, error) {
	var out string
	for _, arg := range args {
		if s, ok := arg.(string); ok {
			out += s
		}
	}
	return out, nil
}

func echoBody(args []any) (any, error) {
	if len(args) == 0 {
		return Foobar{}, nil
	}
	fb, _ := args[0].(Foobar)
	return fb, nil
}
