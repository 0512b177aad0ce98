package guard

import (
	"context"
)

// Operation is a guardable unit of work.
type Operation func(ctx context.Context, args ...any) (any, error)

// Wrap returns op guarded by p. The routing path is read from ctx (see
// WithOperationPath). When the claim is refused op is not called. With
// ReleaseOnCompletion the claim is released after op returns, fails or panics.
// p is validated once here; when it is invalid every call returns that error
// without touching the store.
func (c *Coordinator) Wrap(signature string, p Policy, op Operation) Operation {
	if err := p.Validate(); err != nil {
		return func(context.Context, ...any) (any, error) {
			return nil, err
		}
	}
	return func(ctx context.Context, args ...any) (any, error) {
		inv := Invocation{
			Signature: signature,
			Path:      OperationPathFromContext(ctx),
			Args:      args,
		}

		claim, err := c.Acquire(ctx, inv, p)
		if err != nil {
			return nil, err
		}
		if p.ReleaseOnCompletion {
			// Release even when the caller has gone away.
			defer c.ReleaseKey(context.WithoutCancel(ctx), claim.Key)
		}

		return op(ctx, args...)
	}
}

// WrapFunc guards a typed single-argument function; arg is the only input to
// the fingerprint.
func WrapFunc[A, R any](c *Coordinator, signature string, p Policy,
	fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	wrapped := c.Wrap(signature, p, func(ctx context.Context, args ...any) (any, error) {
		arg, _ := args[0].(A)
		return fn(ctx, arg)
	})

	return func(ctx context.Context, arg A) (R, error) {
		out, err := wrapped(ctx, arg)
		if err != nil {
			var zero R
			return zero, err
		}
		result, _ := out.(R)
		return result, nil
	}
}
