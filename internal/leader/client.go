// Package leader implements the leader link: serializing reports,
// POSTing them to the leader's HTTP endpoints, and periodically reporting
// the daemon's own operational metrics.
package leader

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/otus-tap/agent/internal/bus"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/metrics"
)

const (
	requestTimeout = 10 * time.Second
	userAgent      = "nzyme-tap"
)

// Config mirrors the General section of the daemon configuration.
type Config struct {
	URI                 string
	Secret              string
	AcceptInsecureCerts bool
}

// Client transmits table and status reports to the leader. A non-2xx
// response is logged but never mutates local table state: SendReport's
// callers only read from tables, so there is nothing to roll back on
// failure.
type Client struct {
	version  string
	registry *metrics.Registry
	sampler  *SystemMetricsSampler

	// mu guards the endpoint fields, which a configuration reload can swap
	// while the runner and status loop are mid-cycle.
	mu         sync.RWMutex
	httpClient *http.Client
	baseURI    *url.URL
	secret     string
}

// New constructs a leader Client. version is reported in every status
// payload; registry and sampler back SendStatus's metrics collection.
func New(cfg Config, version string, registry *metrics.Registry, sampler *SystemMetricsSampler) (*Client, error) {
	c := &Client{
		version:  version,
		registry: registry,
		sampler:  sampler,
	}
	if err := c.ApplyConfig(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyConfig swaps the leader endpoint and credentials, as applied by a
// configuration reload. Requests already in flight finish against the old
// transport.
func (c *Client) ApplyConfig(cfg Config) error {
	baseURI, err := url.Parse(cfg.URI)
	if err != nil {
		return fmt.Errorf("could not parse leader URI: %w", err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.AcceptInsecureCerts},
		// DisableCompression left false: Go's transport negotiates gzip on
		// responses transparently.
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = &http.Client{Timeout: requestTimeout, Transport: transport}
	c.baseURI = baseURI
	c.secret = cfg.Secret
	return nil
}

// SendReport POSTs body as JSON to /api/taps/tables/<name>. Transport
// failures and non-2xx responses are logged and returned as errors for
// the caller (the periodic job runner) to count as a skipped cycle; they
// are not retried.
func (c *Client) SendReport(ctx context.Context, name string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not marshal %s report: %w", name, err)
	}

	return c.post(ctx, c.endpoint("/api/taps/tables/"+name), payload)
}

// RunStatusLoop posts a status report every interval until ctx is
// canceled. Failures are logged and the next cycle proceeds normally.
func (c *Client) RunStatusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SendStatus(ctx); err != nil {
				log.GetLogger().WithError(err).Warn("could not send status report to leader")
			}
		}
	}
}

// SendStatus collects metrics and system resource usage and POSTs the
// resulting StatusReport to /api/taps/status. Each registry view
// (processed bytes, channels, captures, timers, gauges) is read on its
// own, so the report is not one atomic snapshot of the registry.
func (c *Client) SendStatus(ctx context.Context) error {
	processed := c.registry.GetProcessedBytes()

	buses := make([]BusReport, 0, len(bus.ChannelsByBus))
	for _, busName := range []bus.BusName{bus.EthernetBus, bus.WifiBus} {
		channelNames := bus.ChannelsByBus[busName]
		channels := make([]ChannelReport, 0, len(channelNames))
		for _, name := range channelNames {
			channels = append(channels, toChannelReport(c.registry.SelectChannel(name)))
		}
		buses = append(buses, BusReport{Name: string(busName), Channels: channels})
	}

	captures := make([]CaptureReport, 0)
	for name, cs := range c.registry.GetCaptures() {
		captures = append(captures, CaptureReport{
			Type: cs.Type, Name: name, Running: cs.Running,
			Received: cs.Received, DroppedBuffer: cs.DroppedBuffer, DroppedInterface: cs.DroppedInterface,
		})
	}

	timers := make(map[string]TimerReport)
	for name, snap := range c.registry.GetTimerSnapshots() {
		timers[name] = TimerReport{Mean: snap.Mean, P99: snap.P99}
	}

	memTotal, memFree := c.sampler.Memory()
	status := StatusReport{
		Version:   c.version,
		Timestamp: time.Now().UTC(),
		ProcessedBytes: TotalWithAverage{
			Total: processed.Total, Average: processed.Average,
		},
		Buses: buses,
		SystemMetrics: SystemMetricsReport{
			CPULoad:     c.sampler.CPULoad(),
			MemoryTotal: memTotal,
			MemoryFree:  memFree,
		},
		Captures:   captures,
		GaugesLong: c.registry.GetGaugesLong(),
		Timers:     timers,
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("could not marshal status report: %w", err)
	}

	return c.post(ctx, c.endpoint("/api/taps/status"), payload)
}

func (c *Client) endpoint(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	target := *c.baseURI
	target.Path = path
	return target.String()
}

func (c *Client) post(ctx context.Context, url string, payload []byte) error {
	c.mu.RLock()
	httpClient, secret := c.httpClient, c.secret
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Otus-Report-Id", xid.New().String())

	resp, err := httpClient.Do(req)
	if err != nil {
		log.GetLogger().WithError(err).WithField("url", url).Warn("could not reach leader")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.GetLogger().WithField("url", url).WithField("status", resp.StatusCode).
			Warn("leader rejected report")
		return fmt.Errorf("leader responded %d for %s", resp.StatusCode, url)
	}

	return nil
}

func toChannelReport(u metrics.ChannelUtilization) ChannelReport {
	return ChannelReport{
		Name:                    u.Name,
		Capacity:                u.Capacity,
		Watermark:               u.Watermark,
		ErrorsTotal:             u.ErrorsTotal,
		ThroughputMessagesTotal: u.ThroughputMessagesTotal,
		ThroughputBytesTotal:    u.ThroughputBytesTotal,
	}
}
