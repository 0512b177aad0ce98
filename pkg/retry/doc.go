// Package retry implements bounded exponential backoff with optional jitter.
//
// dupguard never retries a claim: a rejected or failed Acquire goes straight
// back to the caller. Retry is only used while the service starts and waits for
// its backing store to answer a ping:
//
//	cfg := retry.Startup()
//	cfg.RetryIf = errors.IsTransient
//	err := retry.Do(ctx, cfg, func() error { return store.Ping(ctx) })
package retry
