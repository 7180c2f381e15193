package leader

import "time"

// StatusReport is the body of POST /api/taps/status: version, processed
// byte totals, per-bus channel backpressure, system resource usage,
// capture health, and timer snapshots.
type StatusReport struct {
	Version        string                 `json:"version"`
	Timestamp      time.Time              `json:"timestamp"`
	ProcessedBytes TotalWithAverage       `json:"processed_bytes"`
	Buses          []BusReport            `json:"buses"`
	SystemMetrics  SystemMetricsReport    `json:"system_metrics"`
	Captures       []CaptureReport        `json:"captures"`
	GaugesLong     map[string]int64       `json:"gauges_long"`
	Timers         map[string]TimerReport `json:"timers"`
}

// TotalWithAverage is the {total, average} view of a monotone counter.
type TotalWithAverage struct {
	Total   uint64  `json:"total"`
	Average float64 `json:"average"`
}

// BusReport groups every enumerated channel belonging to one named bus;
// every enumerated channel name appears even if it has no traffic.
type BusReport struct {
	Name     string          `json:"name"`
	Channels []ChannelReport `json:"channels"`
}

// ChannelReport is the reportable view of one channel's backpressure
// accounting.
type ChannelReport struct {
	Name                    string `json:"name"`
	Capacity                int    `json:"capacity"`
	Watermark               int64  `json:"watermark"`
	ErrorsTotal             uint64 `json:"errors_total"`
	ThroughputMessagesTotal uint64 `json:"throughput_messages_total"`
	ThroughputBytesTotal    uint64 `json:"throughput_bytes_total"`
}

// CaptureReport is the reportable view of one capture source's health.
type CaptureReport struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	Running          bool   `json:"running"`
	Received         uint64 `json:"received"`
	DroppedBuffer    uint64 `json:"dropped_buffer"`
	DroppedInterface uint64 `json:"dropped_interface"`
}

// SystemMetricsReport is the daemon's own resource-usage snapshot.
type SystemMetricsReport struct {
	CPULoad     float64 `json:"cpu_load"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryFree  uint64  `json:"memory_free"`
}

// TimerReport is the {mean, p99} view of one named timer.
type TimerReport struct {
	Mean float64 `json:"mean"`
	P99  float64 `json:"p99"`
}
