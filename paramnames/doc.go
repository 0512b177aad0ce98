// Package paramnames resolves the ordered argument names of a guarded operation.
//
// Go does not keep parameter names at run time, so names are declared when an
// operation is wired:
//
//	decl := paramnames.NewDeclarations()
//	decl.MustDeclare("FoobarController.GetSpel", "foo", "bar")
//
//	names, err := paramnames.NewResolver(ctx, decl,
//	    paramnames.WithMetrics(registry))
//	defer names.Close()
//
// The Resolver keeps at most 1000 signatures for at most 10 minutes after each
// was written; both bounds only limit memory. A signature without names yields
// nil and is not cached. A failing Source is logged and also yields nil, so the
// caller falls back to the empty-argument fingerprint instead of failing.
package paramnames
