// Package collector checks monitored systems and turns each check into a
// metric snapshot.
package collector

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"healthwatch/internal/docker"
	"healthwatch/internal/logger"
	"healthwatch/internal/models"
)

const (
	UserAgent      = "healthwatch/1.0 (Health Check)"
	DefaultTimeout = 5 * time.Second
)

// Collector is the collection port used by the monitor.
type Collector interface {
	Collect(ctx context.Context, sys models.MonitoredSystem) (models.MetricSnapshot, error)
	Reachable(ctx context.Context, sys models.MonitoredSystem) bool
}

// ResourceSampler reports CPU and memory usage for a named container.
type ResourceSampler interface {
	Usage(ctx context.Context, container string) (docker.Usage, error)
}

type HTTPCollector struct {
	HTTP    *http.Client
	Sampler ResourceSampler
	log     *logger.Logger
	now     func() time.Time
}

func NewHTTPCollector(timeout time.Duration, sampler ResourceSampler, log *logger.Logger) *HTTPCollector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &HTTPCollector{
		HTTP: &http.Client{
			Timeout: timeout,
			// 3xx responses are reported as-is instead of being followed
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		Sampler: sampler,
		log:     log,
		now:     time.Now,
	}
}

// Endpoint is the URL requested for sys.
func Endpoint(sys models.MonitoredSystem) string {
	if sys.Type == models.SystemTypeService {
		return sys.BaseURL
	}
	return strings.TrimRight(sys.BaseURL, "/") + "/health"
}

// Collect never fails: an unreachable system yields a synthetic 503 snapshot.
func (c *HTTPCollector) Collect(ctx context.Context, sys models.MonitoredSystem) (models.MetricSnapshot, error) {
	start := c.now()
	code, err := c.fetchStatus(ctx, sys)
	latency := c.now().Sub(start).Milliseconds()
	if err != nil {
		c.log.Warn("check failed", "system", sys.Name, "endpoint", Endpoint(sys), "err", err)
		return models.ErrorSnapshot(latency), nil
	}

	snap := models.MetricSnapshot{
		LatencyMs:  clampLatency(latency),
		StatusCode: code,
		HasError:   !(code >= 200 && code < 400),
	}
	if c.Sampler != nil && sys.Container != "" {
		u, err := c.Sampler.Usage(ctx, sys.Container)
		if err != nil {
			c.log.Debug("resource sample failed", "system", sys.Name, "container", sys.Container, "err", err)
		} else {
			snap.CPUPct, snap.MemPct = u.CPUPct, u.MemPct
		}
	}
	c.log.Debug("metrics collected", "system", sys.Name, "latency_ms", snap.LatencyMs, "status", code)
	return snap, nil
}

func (c *HTTPCollector) Reachable(ctx context.Context, sys models.MonitoredSystem) bool {
	code, err := c.fetchStatus(ctx, sys)
	if err != nil {
		c.log.Warn("system not reachable", "system", sys.Name, "err", err)
		return false
	}
	return code >= 200 && code < 400
}

func (c *HTTPCollector) fetchStatus(ctx context.Context, sys models.MonitoredSystem) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, Endpoint(sys), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", UserAgent)
	res, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return res.StatusCode, nil
}

func clampLatency(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > models.MaxLatencyMs {
		return models.MaxLatencyMs
	}
	return ms
}
