// Package health provides Kubernetes-style liveness and readiness probes.
//
// Probes run on a shared background ticker. A probe flips unhealthy only
// after failing consecutively failureThreshold times, and recovers after one
// success, which keeps flaky dependencies from flapping the endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks one component. A nil return means healthy.
type ProbeFunc func(ctx context.Context) error

const failureThreshold = 3

// probe holds the configuration and last observed state of a single check.
type probe struct {
	name    string
	timeout time.Duration
	check   ProbeFunc

	mu       sync.Mutex
	failures int
	healthy  bool
	lastErr  error
}

func newProbe(name string, timeout time.Duration, check ProbeFunc) *probe {
	// Probes start healthy so a slow dependency does not fail the first
	// endpoint hit before the initial run completes.
	return &probe{name: name, timeout: timeout, check: check, healthy: true}
}

func (p *probe) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.failures++
		if p.failures >= failureThreshold {
			p.healthy = false
		}
		return
	}
	p.failures = 0
	p.healthy = true
}

func (p *probe) state() (healthy bool, lastErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

// Service manages liveness and readiness probes and serves their endpoints.
type Service struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Service. It starts not-ready; call SetReady(true) once
// initialization completes.
func New() *Service {
	return &Service{}
}

// AddLiveness registers a liveness probe: is the process itself functioning.
func (s *Service) AddLiveness(name string, timeout time.Duration, check ProbeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, newProbe(name, timeout, check))
}

// AddReadiness registers a readiness probe: can the service take traffic.
func (s *Service) AddReadiness(name string, timeout time.Duration, check ProbeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, newProbe(name, timeout, check))
}

// Start runs all registered probes on the given interval until Stop or
// context cancellation. Register probes before calling Start.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := append(append([]*probe(nil), s.liveness...), s.readiness...)
	s.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the background probe goroutines. Safe to call repeatedly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true after startup, false during
// graceful shutdown to drain traffic.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness probe
// passes.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	s.mu.Lock()
	probes := s.readiness
	s.mu.Unlock()

	for _, p := range probes {
		if healthy, _ := p.state(); !healthy {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when all liveness probes pass, 503 with
// per-probe failures otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	probes := append([]*probe(nil), s.liveness...)
	s.mu.Unlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and all
// readiness probes pass, 503 with details otherwise.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	probes := append([]*probe(nil), s.readiness...)
	s.mu.Unlock()

	failed := failures(probes)
	if !s.ready.Load() {
		failed["_readiness"] = "service is not ready"
	}
	writeStatus(w, failed)
}

func failures(probes []*probe) map[string]string {
	failed := make(map[string]string)
	for _, p := range probes {
		healthy, lastErr := p.state()
		if healthy {
			continue
		}
		if lastErr != nil {
			failed[p.name] = lastErr.Error()
		} else {
			failed[p.name] = "probe is unhealthy"
		}
	}
	return failed
}

func writeStatus(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failed
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
