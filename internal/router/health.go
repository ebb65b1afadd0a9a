package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johndauphine/dualstore-migrate/internal/backend"
)

// BackendHealth is the reachability of one backend.
type BackendHealth struct {
	Name       string `json:"name" yaml:"name"`
	Kind       string `json:"kind" yaml:"kind"`
	Driver     string `json:"driver" yaml:"driver"`
	Configured bool   `json:"configured" yaml:"configured"`
	Connected  bool   `json:"connected" yaml:"connected"`
	LatencyMs  int64  `json:"latency_ms" yaml:"latency_ms"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// HealthResult reports every backend. Healthy means every configured
// backend answered.
type HealthResult struct {
	Timestamp string          `json:"timestamp" yaml:"timestamp"`
	Healthy   bool            `json:"healthy" yaml:"healthy"`
	Backends  []BackendHealth `json:"backends" yaml:"backends"`
}

// Health pings every backend in parallel, each with its own timeout, so
// one slow backend cannot consume the other's budget.
func (r *Router) Health(ctx context.Context, timeout time.Duration) *HealthResult {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	result := &HealthResult{
		Timestamp: time.Now().Format(time.RFC3339),
		Backends:  make([]BackendHealth, len(r.handles)),
	}

	var wg sync.WaitGroup
	for i, h := range r.handles {
		wg.Add(1)
		go func(i int, h *backend.Handle) {
			defer wg.Done()
			bh := BackendHealth{
				Name:       h.Name(),
				Kind:       h.Kind().String(),
				Driver:     h.Driver(),
				Configured: !errors.Is(h.Err(), backend.ErrNotConfigured),
			}
			start := time.Now()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := h.Ping(checkCtx); err != nil {
				bh.Error = err.Error()
			} else {
				bh.Connected = true
			}
			bh.LatencyMs = time.Since(start).Milliseconds()
			result.Backends[i] = bh
		}(i, h)
	}
	wg.Wait()

	result.Healthy = true
	configured := 0
	for _, bh := range result.Backends {
		if !bh.Configured {
			continue
		}
		configured++
		if !bh.Connected {
			result.Healthy = false
		}
	}
	if configured == 0 {
		result.Healthy = false
	}
	return result
}
