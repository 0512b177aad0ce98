// Package dupguard rejects repeated submissions of the same operation with the
// same arguments while an earlier submission's claim is still live.
//
// # How it works
//
// Every guarded invocation is reduced to a storage key
//
//	namespace:operationPath:fingerprint
//
// where the fingerprint is a fixed-width hash of either the operation signature
// plus all argument values, or the text produced by a key expression over named
// arguments (for example "#foobar.bar"). The coordinator claims the key with a
// single atomic set-if-absent-with-expiry call against a shared store. The first
// caller wins; everyone else sees a duplicate until the claim expires or, for
// operations configured to release on completion, until the winner finishes.
//
// A store fault is never reported as a duplicate and is never retried by the
// coordinator.
//
// # Packages
//
// Core:
//   - guard: Policy, Fingerprinter, BuildKey, Coordinator and the Store interface
//   - paramnames: declared parameter names behind a bounded cache
//   - pkg/canonical: canonical JSON encoding of argument values
//   - pkg/keyexpr: the restricted key-expression language
//
// Stores:
//   - store/memstore: in-process, for single instances and tests
//   - store/redisstore: Redis SET NX EX / DEL
//   - store/sqlstore: PostgreSQL or SQLite conditional upsert
//   - natsclient: NATS JetStream key-value bucket with per-key TTL
//
// Glue and infrastructure:
//   - httpguard: net/http, gin and echo middleware
//   - config, errors, health, metric, pkg/cache, pkg/retry, pkg/worker
//   - cmd/dupguard: the serve, fingerprint and burst commands
//
// # Quick start
//
//	decls := paramnames.NewDeclarations()
//	decls.MustDeclare("Orders.Create(order Order)", "order")
//
//	resolver, _ := paramnames.NewResolver(ctx, decls)
//	coord, _ := guard.NewCoordinator(memstore.New(),
//		guard.WithNamespace("shop"),
//		guard.WithNameResolver(resolver),
//	)
//
//	create := coord.Wrap("Orders.Create(order Order)",
//		guard.DefaultPolicy().WithKeyExpression("#order.id"),
//		createOrder,
//	)
//
//	_, err := create(guard.WithOperationPath(ctx, "/orders"), order)
//	if guard.IsDuplicate(err) {
//		// answer 409
//	}
package dupguard
