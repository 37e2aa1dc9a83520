// Package health runs named subsystem probes and folds the results into
// one verdict for the health and readiness endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is one subsystem's report. Name is filled by the registry when
// the probe leaves it empty. Latency is measured by the registry, not the
// probe.
type Status struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	Detail    string  `json:"detail,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Checker probes one subsystem. Implementations should respect ctx; the
// registry itself does not impose a deadline.
type Checker func(ctx context.Context) Status

// Registry runs registered probes in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	checks map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds a probe under name. Registering a name twice replaces the
// earlier probe and keeps its position.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.checks[name]; !seen {
		r.order = append(r.order, name)
	}
	r.checks[name] = check
}

// CheckAll runs every probe and reports the combined verdict. The service
// counts as healthy only when every subsystem does.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	checks := make(map[string]Checker, len(r.checks))
	for name, fn := range r.checks {
		checks[name] = fn
	}
	r.mu.RUnlock()

	all := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		started := time.Now()
		st := checks[name](ctx)
		st.LatencyMS = float64(time.Since(started).Microseconds()) / 1000.0
		if st.Name == "" {
			st.Name = name
		}
		if !st.Healthy {
			all = false
		}
		statuses = append(statuses, st)
	}
	return all, statuses
}
