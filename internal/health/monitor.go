package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

// Check reports the health of one component.
type Check func(ctx context.Context) ComponentHealth

// Monitor aggregates health status from registered components.
type Monitor struct {
	checks     map[string]Check
	interval   time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Reports are cached for interval.
func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		checks:   make(map[string]Check),
		interval: interval,
	}
}

// Register adds a named check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// CheckHealth runs every check, at most once per interval.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid spamming the wallet and the database
	if time.Since(m.lastCheck) < m.interval && m.lastReport.Components != nil {
		return m.lastReport
	}

	components := make(map[string]ComponentHealth, len(m.checks))
	for name, check := range m.checks {
		c := check(ctx)
		c.Name = name
		components[name] = c
	}

	m.lastCheck = time.Now()
	m.lastReport = HealthReport{
		SystemStatus: Aggregate(components),
		Components:   components,
	}
	return m.lastReport
}

// ProviderCheck reports an RPC provider's health. An unavailable wallet is
// critical; throttling or a high error rate is degraded.
func ProviderCheck(p provider.Provider, critical bool) Check {
	return func(context.Context) ComponentHealth {
		h := p.GetHealth()
		c := ComponentHealth{Status: StatusHealthy, Throttles: h.Throttles}
		if h.RecentLatency > 0 {
			c.Latency = h.RecentLatency.String()
		}

		switch {
		case !h.Available && critical:
			c.Status, c.Detail = StatusCritical, "unavailable"
		case !h.Available:
			c.Status, c.Detail = StatusDegraded, "unavailable"
		case h.Throttled:
			c.Status, c.Detail = StatusDegraded, "throttled"
		case h.ErrorRate > 0.5:
			c.Status, c.Detail = StatusDegraded, "high error rate"
		}
		return c
	}
}

// PingCheck reports a dependency that answers a ping. Failures degrade the
// service since dispatching does not depend on it.
func PingCheck(ping func(context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDegraded, Detail: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}
