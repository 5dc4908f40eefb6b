package health

import (
	"context"
	"sync/atomic"
	"time"
)

// ProbeManager adds startup and shutdown state to Manager.
type ProbeManager struct {
	*Manager

	startTime   time.Time
	initialized atomic.Bool
	inShutdown  atomic.Bool
	version     string
}

// NewProbeManager creates a probe manager reporting version.
func NewProbeManager(version string) *ProbeManager {
	return &ProbeManager{
		Manager:   NewManager(),
		startTime: time.Now(),
		version:   version,
	}
}

// MarkInitialized lets the startup probe pass.
func (pm *ProbeManager) MarkInitialized() { pm.initialized.Store(true) }

// MarkShutdown makes readiness fail while connections drain.
func (pm *ProbeManager) MarkShutdown() { pm.inShutdown.Store(true) }

// IsInitialized reports whether MarkInitialized was called.
func (pm *ProbeManager) IsInitialized() bool { return pm.initialized.Load() }

// IsShuttingDown reports whether MarkShutdown was called.
func (pm *ProbeManager) IsShuttingDown() bool { return pm.inShutdown.Load() }

// Uptime is the time since the manager was created.
func (pm *ProbeManager) Uptime() time.Duration { return time.Since(pm.startTime) }

// Version returns the reported version.
func (pm *ProbeManager) Version() string { return pm.version }

// ProbeResult is the JSON body of a probe response.
type ProbeResult struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (pm *ProbeManager) result(status Status, checks map[string]*Result) *ProbeResult {
	if checks == nil {
		checks = map[string]*Result{}
	}
	return &ProbeResult{
		Status:    status,
		Version:   pm.version,
		Uptime:    pm.Uptime().Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now(),
	}
}

// CheckLiveness never runs dependency checks. A draining process is
// degraded but alive.
func (pm *ProbeManager) CheckLiveness(context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusDegraded, nil)
	}
	return pm.result(StatusHealthy, nil)
}

// CheckReadiness fails during shutdown and otherwise aggregates every
// registered check.
func (pm *ProbeManager) CheckReadiness(ctx context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusUnhealthy, nil)
	}
	checks := pm.Check(ctx)
	return pm.result(OverallStatus(checks), checks)
}

// CheckStartup passes once MarkInitialized has been called.
func (pm *ProbeManager) CheckStartup(context.Context) *ProbeResult {
	if pm.IsInitialized() {
		return pm.result(StatusHealthy, nil)
	}
	return pm.result(StatusUnhealthy, nil)
}
