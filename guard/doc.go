// Package guard rejects repeated submissions of the same operation call within
// a time window, across any number of processes sharing one store.
//
// A call is reduced to a fingerprint: a 64-bit xxHash of either the operation
// signature plus canonical JSON of every argument, or the text a key
// expression such as "#foobar.bar" yields for the named arguments. The
// fingerprint is combined with an optional namespace and routing path into a
// storage key:
//
//	[namespace:][path:]fingerprint
//
// Acquire then issues exactly one atomic set-if-absent with expiry against the
// Store. The outcome is one of:
//
//   - a *Claim: the key was free and is now held for the policy TTL
//   - a *DuplicateError (errors.Is ErrDuplicateSubmission): the key is held
//   - an error matching ErrStoreUnavailable: the store did not answer
//
// Duplicate and store failures are never conflated, so callers can decide to
// fail open or closed on store outages. Release deletes the key early and never
// fails the caller.
//
// Operations are guarded by explicit composition:
//
//	coord, _ := guard.NewCoordinator(store,
//	    guard.WithNamespace("orders"),
//	    guard.WithNameResolver(names))
//
//	submit := coord.Wrap("Orders.Submit(order)", guard.DefaultPolicy().
//	    WithKeyExpression("#order.id"), submitOrder)
//
// The Coordinator holds no in-process lock and never retries; correctness rests
// on the atomicity of the store's set-if-absent.
package guard
