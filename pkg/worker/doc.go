// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that apply one processor function
// to submitted items. Submit never blocks: when the queue is full the item is
// dropped and ErrQueueFull returned.
//
//	pool, err := worker.NewPool(8, 100, func(ctx context.Context, req Request) error {
//	    return send(ctx, req)
//	}, worker.WithMetrics[Request](registry, "burst"))
//	if err != nil {
//	    return err
//	}
//	_ = pool.Start(ctx)
//	for _, req := range requests {
//	    _ = pool.Submit(req)
//	}
//	err = pool.Stop(10 * time.Second) // waits for queued items
//
// A panicking processor is recovered and counted as a failure; the worker
// keeps running.
package worker
