// Package metrics implements the tap's process-wide metrics registry:
// counters, gauges, and timers for the message bus, protocol tables, and
// capture sources, exposed both to Prometheus and to the leader status
// report.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// maxTimerSamples bounds the per-timer reservoir used to compute mean/p99
// locally; Prometheus gets every observation regardless via SummaryVec.
const maxTimerSamples = 1024

// ChannelUtilization is a point-in-time snapshot of one bus channel's
// backpressure accounting, as read by select_channel and by the leader
// status report.
type ChannelUtilization struct {
	Name                    string
	Capacity                int
	Watermark               int64
	ErrorsTotal             uint64
	ThroughputMessagesTotal uint64
	ThroughputBytesTotal    uint64
}

// CaptureState is the per-interface capture health snapshot recorded by
// record_capture and surfaced verbatim in the leader status report.
type CaptureState struct {
	Type             string
	Name             string
	Running          bool
	Received         uint64
	DroppedBuffer    uint64
	DroppedInterface uint64
}

// ProcessedBytes is the {total, average} view returned by
// get_processed_bytes.
type ProcessedBytes struct {
	Total   uint64
	Average float64 // bytes/sec since registry construction
}

// TimerSnapshot is the {mean, p99} view returned by get_timer_snapshots.
type TimerSnapshot struct {
	Mean float64
	P99  float64
}

type channelState struct {
	capacity           int
	watermark          atomic.Int64
	errors             atomic.Uint64
	throughputMessages atomic.Uint64
	throughputBytes    atomic.Uint64
}

type timerState struct {
	mu      sync.Mutex
	samples []float64 // seconds, ring buffer of at most maxTimerSamples
	next    int
	sum     float64
	count   uint64
}

// Registry is the concurrency-safe, process-wide metrics store. It is
// always an explicitly constructed object passed by shared handle, never a
// package-level singleton, so every component's dependency on it is visible
// in its constructor.
type Registry struct {
	created time.Time

	processedBytesTotal atomic.Uint64

	mu       sync.RWMutex
	channels map[string]*channelState
	captures map[string]CaptureState
	gauges   map[string]int64
	timers   map[string]*timerState

	promChannelCapacity   *prometheus.GaugeVec
	promChannelWatermark  *prometheus.GaugeVec
	promChannelErrors     *prometheus.CounterVec
	promChannelThroughput *prometheus.CounterVec
	promChannelBytes      *prometheus.CounterVec
	promProcessedBytes    prometheus.Counter
	promCaptureRunning    *prometheus.GaugeVec
	promGaugeLong         *prometheus.GaugeVec
	promTimers            *prometheus.SummaryVec

	promReg *prometheus.Registry
}

// Gatherer exposes the registry's own Prometheus collector set, independent
// of the global default registerer, so multiple Registry instances (as
// created in tests) never collide on metric names.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.promReg
}

// NewRegistry constructs a Registry with its own private Prometheus
// registry, so tests and multiple tap instances never collide on metric
// names the way the global default registerer would.
func NewRegistry() *Registry {
	promReg := prometheus.NewRegistry()
	factory := promauto.With(promReg)

	return &Registry{
		created:  time.Now(),
		channels: make(map[string]*channelState),
		captures: make(map[string]CaptureState),
		gauges:   make(map[string]int64),
		timers:   make(map[string]*timerState),
		promReg:  promReg,

		promChannelCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "otus_tap_channel_capacity",
			Help: "Configured capacity of a named bus channel.",
		}, []string{"channel"}),
		promChannelWatermark: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "otus_tap_channel_watermark",
			Help: "Current queue depth of a named bus channel.",
		}, []string{"channel"}),
		promChannelErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otus_tap_channel_errors_total",
			Help: "Total sends rejected due to a full bus channel.",
		}, []string{"channel"}),
		promChannelThroughput: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otus_tap_channel_throughput_messages_total",
			Help: "Total messages accepted by a named bus channel.",
		}, []string{"channel"}),
		promChannelBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otus_tap_channel_throughput_bytes_total",
			Help: "Total bytes accepted by a named bus channel.",
		}, []string{"channel"}),
		promProcessedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "otus_tap_processed_bytes_total",
			Help: "Total bytes processed across all channels.",
		}),
		promCaptureRunning: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "otus_tap_capture_running",
			Help: "Whether a capture source is currently running (1) or not (0).",
		}, []string{"capture"}),
		promGaugeLong: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "otus_tap_gauge_long",
			Help: "Last-writer-wins signed integer gauges.",
		}, []string{"name"}),
		promTimers: factory.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "otus_tap_timer_seconds",
			Help:       "Recorded durations by timer name.",
			Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}, []string{"name"}),
	}
}

func (r *Registry) channel(name string) *channelState {
	r.mu.RLock()
	c, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.channels[name]; ok {
		return c
	}
	c = &channelState{}
	r.channels[name] = c
	return c
}

// RecordProcessedBytes adds n to a monotone counter. GetProcessedBytes
// averages it over the registry's whole lifetime; there is no rolling
// average window.
func (r *Registry) RecordProcessedBytes(n uint64) {
	r.processedBytesTotal.Add(n)
	r.promProcessedBytes.Add(float64(n))
}

// IncrementChannelErrors records n send failures (queue full) for channel.
func (r *Registry) IncrementChannelErrors(name string, n uint64) {
	c := r.channel(name)
	c.errors.Add(n)
	r.promChannelErrors.WithLabelValues(name).Add(float64(n))
}

// RecordChannelCapacity sets the configured capacity of channel.
func (r *Registry) RecordChannelCapacity(name string, cap int) {
	c := r.channel(name)
	c.capacity = cap
	r.promChannelCapacity.WithLabelValues(name).Set(float64(cap))
}

// RecordChannelWatermark sets the current queue depth of channel.
func (r *Registry) RecordChannelWatermark(name string, level int64) {
	c := r.channel(name)
	c.watermark.Store(level)
	r.promChannelWatermark.WithLabelValues(name).Set(float64(level))
}

// IncrementChannelThroughputMessages records n accepted messages.
func (r *Registry) IncrementChannelThroughputMessages(name string, n uint64) {
	c := r.channel(name)
	c.throughputMessages.Add(n)
	r.promChannelThroughput.WithLabelValues(name).Add(float64(n))
}

// IncrementChannelThroughputBytes records n accepted bytes.
func (r *Registry) IncrementChannelThroughputBytes(name string, n uint64) {
	c := r.channel(name)
	c.throughputBytes.Add(n)
	r.promChannelBytes.WithLabelValues(name).Add(float64(n))
}

// RecordCapture stores the latest capture health snapshot for name.
func (r *Registry) RecordCapture(name string, state CaptureState) {
	r.mu.Lock()
	r.captures[name] = state
	r.mu.Unlock()

	running := 0.0
	if state.Running {
		running = 1.0
	}
	r.promCaptureRunning.WithLabelValues(name).Set(running)
}

// SetGaugeLong is a last-writer-wins signed integer gauge.
func (r *Registry) SetGaugeLong(name string, value int64) {
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
	r.promGaugeLong.WithLabelValues(name).Set(float64(value))
}

// Time records d into the named timer, retaining samples for mean/p99
// calculation and exporting to the Prometheus summary.
func (r *Registry) Time(name string, d time.Duration) {
	r.mu.RLock()
	t, ok := r.timers[name]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if t, ok = r.timers[name]; !ok {
			t = &timerState{samples: make([]float64, 0, maxTimerSamples)}
			r.timers[name] = t
		}
		r.mu.Unlock()
	}

	seconds := d.Seconds()
	t.mu.Lock()
	if len(t.samples) < maxTimerSamples {
		t.samples = append(t.samples, seconds)
	} else {
		t.samples[t.next] = seconds
		t.next = (t.next + 1) % maxTimerSamples
	}
	t.sum += seconds
	t.count++
	t.mu.Unlock()

	r.promTimers.WithLabelValues(name).Observe(seconds)
}

// GetProcessedBytes returns the total bytes processed and the average
// throughput in bytes/sec since the registry was constructed.
func (r *Registry) GetProcessedBytes() ProcessedBytes {
	total := r.processedBytesTotal.Load()
	elapsed := time.Since(r.created).Seconds()
	avg := 0.0
	if elapsed > 0 {
		avg = float64(total) / elapsed
	}
	return ProcessedBytes{Total: total, Average: avg}
}

// GetCaptures returns a snapshot of all recorded capture health states.
func (r *Registry) GetCaptures() map[string]CaptureState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CaptureState, len(r.captures))
	for k, v := range r.captures {
		out[k] = v
	}
	return out
}

// GetGaugesLong returns a snapshot of all long gauges.
func (r *Registry) GetGaugesLong() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.gauges))
	for k, v := range r.gauges {
		out[k] = v
	}
	return out
}

// GetTimerSnapshots returns mean and p99 for every timer with at least one
// observation.
func (r *Registry) GetTimerSnapshots() map[string]TimerSnapshot {
	r.mu.RLock()
	names := make([]string, 0, len(r.timers))
	timers := make([]*timerState, 0, len(r.timers))
	for name, t := range r.timers {
		names = append(names, name)
		timers = append(timers, t)
	}
	r.mu.RUnlock()

	out := make(map[string]TimerSnapshot, len(names))
	for i, name := range names {
		t := timers[i]
		t.mu.Lock()
		if t.count == 0 {
			t.mu.Unlock()
			continue
		}
		sorted := append([]float64(nil), t.samples...)
		mean := t.sum / float64(t.count)
		t.mu.Unlock()

		sort.Float64s(sorted)
		p99 := percentile(sorted, 0.99)
		out[name] = TimerSnapshot{Mean: mean, P99: p99}
	}
	return out
}

// SelectChannel returns a point-in-time utilization snapshot for name.
// Unknown channel names return a zeroed snapshot (invariant: the full
// enumerated channel set always appears in reports).
func (r *Registry) SelectChannel(name string) ChannelUtilization {
	r.mu.RLock()
	c, ok := r.channels[name]
	r.mu.RUnlock()
	if !ok {
		return ChannelUtilization{Name: name}
	}
	return ChannelUtilization{
		Name:                    name,
		Capacity:                c.capacity,
		Watermark:               c.watermark.Load(),
		ErrorsTotal:             c.errors.Load(),
		ThroughputMessagesTotal: c.throughputMessages.Load(),
		ThroughputBytesTotal:    c.throughputBytes.Load(),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
