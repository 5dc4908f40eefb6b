// Package health runs dependency checks and answers liveness, readiness and
// startup probes for flowboard serve.
//
//	manager := health.NewProbeManager(version.Version)
//	manager.AddChecker(health.NewStoreChecker(db))
//	result := manager.CheckReadiness(ctx)
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker verifies one dependency. Check must honour the context deadline.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "sqlite-store".
	Name() string
	Check(ctx context.Context) *Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) *Result
}

// Name implements Checker.
func (c CheckerFunc) Name() string { return c.CheckName }

// Check implements Checker.
func (c CheckerFunc) Check(ctx context.Context) *Result { return c.Fn(ctx) }

// Status is a check outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded" // working with reduced function
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// NewResult creates a result with no details.
func NewResult(status Status, message string) *Result {
	return &Result{Status: status, Message: message, Details: map[string]any{}}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// Healthy creates a healthy result.
func Healthy(message string) *Result { return NewResult(StatusHealthy, message) }

// Degraded creates a degraded result.
func Degraded(message string) *Result { return NewResult(StatusDegraded, message) }

// Unhealthy creates an unhealthy result.
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }

// Manager runs registered checks in parallel, each under its own timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with a five second per-check timeout.
func NewManager() *Manager {
	return &Manager{timeout: 5 * time.Second}
}

// SetTimeout changes the per-check timeout.
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout > 0 {
		m.timeout = timeout
	}
}

// AddChecker registers checker, replacing any checker with the same name.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.checkers {
		if c.Name() == checker.Name() {
			m.checkers[i] = checker
			return
		}
	}
	m.checkers = append(m.checkers, checker)
}

// CheckNames returns the registered names in sorted order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.checkers))
	for i, c := range m.checkers {
		names[i] = c.Name()
	}
	sort.Strings(names)
	return names
}

// Check runs every checker and returns results by name. A checker that
// returns nil counts as unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result == nil {
				result = Unhealthy("check returned no result")
			}
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results
}

// OverallStatus is the worst status in results. No results is healthy.
func OverallStatus(results map[string]*Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
