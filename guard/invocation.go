package guard

import "context"

// Invocation describes one call of a guarded operation.
type Invocation struct {
	// Signature identifies the code being called, e.g. "FoobarController.Get(foo, bar string)".
	Signature string

	// Path is the routing path of the call. It only takes part in the key when
	// the policy includes the operation path.
	Path string

	// Args are the argument values in call order.
	Args []any
}

type pathKey struct{}

// WithOperationPath attaches the routing path of the current call to ctx.
func WithOperationPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// OperationPathFromContext returns the path set by WithOperationPath.
func OperationPathFromContext(ctx context.Context) string {
	path, _ := ctx.Value(pathKey{}).(string)
	return path
}
