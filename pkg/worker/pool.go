package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/metric"
)

const (
	defaultWorkers   = 10
	defaultQueueSize = 1000
)

// Pool processes items of type T with a fixed number of workers
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup
	metrics  *poolMetrics

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panicked  atomic.Int64

	registry metric.Registrar
	name     string
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetrics registers the pool metrics as dupguard_worker_<name>_*
func WithMetrics[T any](registry metric.Registrar, name string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.name = name
	}
}

// NewPool creates a pool. Non-positive workers or queueSize select the defaults.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) (*Pool[T], error) {
	if processor == nil {
		return nil, errors.WrapInvalid(ErrNilProcessor, "Pool", "NewPool", "check processor")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.registry != nil && p.name != "" {
		m, err := p.registerMetrics()
		if err != nil {
			return nil, errors.Wrap(err, "Pool", "NewPool", "register metrics")
		}
		p.metrics = m
	}
	return p, nil
}

func (p *Pool[T]) registerMetrics() (*poolMetrics, error) {
	subsystem := "worker_" + p.name
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Items waiting for a worker",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: subsystem,
			Name:      "submitted_total",
			Help:      "Items accepted by Submit",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: subsystem,
			Name:      "dropped_total",
			Help:      "Items refused because the queue was full",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: subsystem,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing items by status",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),
	}

	service := "worker_" + p.name
	if err := p.registry.RegisterGauge(service, "queue_depth", m.queueDepth); err != nil {
		return nil, err
	}
	if err := p.registry.RegisterCounter(service, "submitted_total", m.submitted); err != nil {
		return nil, err
	}
	if err := p.registry.RegisterCounter(service, "dropped_total", m.dropped); err != nil {
		return nil, err
	}
	if err := p.registry.RegisterHistogramVec(service, "processing_duration_seconds", m.processingTime); err != nil {
		return nil, err
	}
	return m, nil
}

// Submit queues work without blocking
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. They exit when ctx is done or the pool is stopped.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop refuses further work and waits up to timeout for queued items to finish
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.workChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
		Panicked:   p.panicked.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
	Panicked   int64 `json:"panicked"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := p.safeProcess(ctx, work)
	duration := time.Since(start)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.processingTime.WithLabelValues(status).Observe(duration.Seconds())
		p.metrics.queueDepth.Set(float64(len(p.workChan)))
	}
}

func (p *Pool[T]) safeProcess(ctx context.Context, work T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return p.processor(ctx, work)
}
