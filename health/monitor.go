package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency; a nil error means healthy.
type Probe func(ctx context.Context) error

// Monitor tracks the health of named dependencies
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	probes   map[string]Probe

	now          func() time.Time
	probeTimeout time.Duration
	onStatus     func(name string, status Status)
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithProbeTimeout bounds each probe run by Check (default 2s)
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithStatusCallback is called after every probe with its result
func WithStatusCallback(fn func(name string, status Status)) Option {
	return func(m *Monitor) {
		m.onStatus = fn
	}
}

// NewMonitor creates a monitor
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		statuses:     make(map[string]Status),
		probes:       make(map[string]Probe),
		now:          time.Now,
		probeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a probe for name. Its status is unknown until the first Check.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Update sets the status of name
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = m.now()
	}
	m.statuses[name] = status
}

// Get returns the last status of name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// All returns a copy of every status
func (m *Monitor) All() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		out[name] = status
	}
	return out
}

// Remove forgets name and its probe
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.probes, name)
}

// Count returns the number of tracked dependencies
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// Aggregate combines the current statuses, ordered by name
func (m *Monitor) Aggregate(system string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		subs = append(subs, m.statuses[name])
	}
	m.mu.RUnlock()

	status := Aggregate(system, subs)
	status.Timestamp = m.now()
	return status
}

// Check runs every probe and returns the aggregate. Probes run one after
// another, each bounded by the probe timeout.
func (m *Monitor) Check(ctx context.Context, system string) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		status := m.runProbe(ctx, name, probes[name])
		m.Update(name, status)
		if m.onStatus != nil {
			m.onStatus(name, status)
		}
	}
	return m.Aggregate(system)
}

func (m *Monitor) runProbe(ctx context.Context, name string, probe Probe) Status {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := m.now()
	err := probe(probeCtx)
	status := FromError(name, err)
	status.Timestamp = m.now()
	status.Latency = status.Timestamp.Sub(start).String()
	return status
}

// Run checks immediately and then every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, system string, interval time.Duration) {
	m.Check(ctx, system)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx, system)
		}
	}
}
