package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, inference, realtime).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ProbeFunc returns nil when the component answered in time.
type ProbeFunc func(ctx context.Context) error

// ProbeChecker caches the result of a periodic probe.
type ProbeChecker struct {
	name         string
	probe        ProbeFunc
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewProbeChecker creates a checker that starts unhealthy until its first successful probe.
func NewProbeChecker(name string, probe ProbeFunc, log zerolog.Logger, probeTimeout time.Duration) *ProbeChecker {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &ProbeChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
}

func (c *ProbeChecker) Name() string { return c.name }

// IsHealthy returns the cached health status (non-blocking).
func (c *ProbeChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Check runs one probe and records the outcome.
func (c *ProbeChecker) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.probe(probeCtx); err != nil {
		if c.healthy.Swap(0) == 1 {
			c.log.Error().Stack().Str("checker", c.name).Err(err).Msg("health check failed")
		}
		return false
	}
	if c.healthy.Swap(1) == 0 {
		c.log.Info().Str("checker", c.name).Msg("health check passed")
	}
	return true
}

// Start probes immediately and then on every tick until ctx is done.
func (c *ProbeChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Components reports the cached state of every dependency.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, d := range h.deps {
		out[d.Name()] = d.IsHealthy()
	}
	return out
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		cur := int32(1)
		for _, c := range h.deps {
			if !c.IsHealthy() {
				cur = 0
			}
		}
		h.healthy.Store(cur)
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
