package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"

	probeTimeout = 5 * time.Second
)

// PingFunc checks one backing store. A nil PingFunc means the store is required but was never wired.
type PingFunc func(ctx context.Context) error

// HealthChecker serves liveness, readiness and dependency health.
type HealthChecker struct {
	version string
	booted  time.Time
	checks  map[string]PingFunc
	ready   atomic.Bool
}

func NewHealthChecker(version string, checks map[string]PingFunc) *HealthChecker {
	return &HealthChecker{version: version, booted: time.Now(), checks: checks}
}

// SetReady flips /health/ready. The server marks itself ready once it is listening.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/health/live", h.Live)
	e.GET("/health/ready", h.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health pings every dependency in parallel and answers 503 if any of them fails.
func (h *HealthChecker) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	report := &HealthStatus{
		Status:     statusHealthy,
		Version:    h.version,
		Uptime:     time.Since(h.booted).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(h.checks)),
		ReportedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for name, ping := range h.checks {
		g.Go(func() error {
			result := probe(ctx, name, ping)
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = result
			if result.Status != statusHealthy {
				report.Status = statusUnhealthy
			}
			return nil
		})
	}
	_ = g.Wait()

	code := http.StatusOK
	if report.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, report)
}

func probe(ctx context.Context, name string, ping PingFunc) *CheckResult {
	if ping == nil {
		return &CheckResult{Status: statusUnhealthy, Message: name + " not configured"}
	}
	began := time.Now()
	if err := ping(ctx); err != nil {
		return &CheckResult{Status: statusUnhealthy, Message: err.Error()}
	}
	return &CheckResult{Status: statusHealthy, Latency: time.Since(began).String()}
}

func (h *HealthChecker) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthChecker) Ready(c echo.Context) error {
	if !h.ready.Load() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
