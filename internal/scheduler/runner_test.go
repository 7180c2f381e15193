package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/leader"
	"github.com/otus-tap/agent/internal/metrics"
	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/tables"
)

func TestRunner_TickOrderIsFixed(t *testing.T) {
	var mu sync.Mutex
	var order []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := metrics.NewRegistry()
	sampler := &leader.SystemMetricsSampler{}
	client, err := leader.New(leader.Config{URI: server.URL, Secret: "x"}, "test", registry, sampler)
	require.NoError(t, err)

	tcpTable := tables.NewTCPTable(1<<20, time.Minute)
	dot11Table := tables.NewDot11Table()
	dnsTable := tables.NewDNSTable()

	runner := NewRunner(time.Hour, tcpTable, dot11Table, dnsTable, client)
	runner.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"/api/taps/tables/tcp",
		"/api/taps/tables/dot11",
		"/api/taps/tables/dns",
	}, order)
}

func TestRunner_DerivedMetricsTravelInReportBodies(t *testing.T) {
	bodies := make(map[string][]byte)
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := metrics.NewRegistry()
	client, err := leader.New(leader.Config{URI: server.URL, Secret: "x"}, "test", registry, &leader.SystemMetricsSampler{})
	require.NoError(t, err)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	now := time.Now()

	tcpTable := tables.NewTCPTable(1<<20, time.Minute)
	tcpTable.Observe(packet.TcpSegment{
		SrcIP: a, DstIP: b, SrcPort: 1000, DstPort: 80,
		Flags: packet.TCPFlags{SYN: true}, Timestamp: now,
	}, now)

	dnsTable := tables.NewDNSTable()
	dnsTable.Observe(packet.DNSPacket{
		TransactionID: 7, QName: "example.com", ClientAddr: a, ServerAddr: b,
	}, now)
	dnsTable.Observe(packet.DNSPacket{
		TransactionID: 7, QR: true, QName: "example.com", ClientAddr: a, ServerAddr: b,
	}, now.Add(50*time.Millisecond))

	runner := NewRunner(time.Hour, tcpTable, tables.NewDot11Table(), dnsTable, client)
	runner.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()

	var tcpReport map[string]interface{}
	require.NoError(t, json.Unmarshal(bodies["/api/taps/tables/tcp"], &tcpReport))
	tcpMetrics, ok := tcpReport["metrics"].(map[string]interface{})
	require.True(t, ok, "tcp report must carry a metrics object")
	require.EqualValues(t, 1, tcpMetrics["active_sessions"])
	require.Contains(t, tcpMetrics["sessions_by_state"], "NEW")
	require.Len(t, tcpMetrics["top_talkers"], 1)

	var dnsReport map[string]interface{}
	require.NoError(t, json.Unmarshal(bodies["/api/taps/tables/dns"], &dnsReport))
	dnsMetrics, ok := dnsReport["metrics"].(map[string]interface{})
	require.True(t, ok, "dns report must carry a metrics object")
	require.EqualValues(t, 1, dnsMetrics["total_queries"])
	require.EqualValues(t, 1, dnsMetrics["total_responses"])
	require.InDelta(t, 50_000, dnsMetrics["mean_latency_micros"], 1_000)
}

func TestRunner_LeaderFailureIsIsolated(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := metrics.NewRegistry()
	client, err := leader.New(leader.Config{URI: server.URL, Secret: "x"}, "test", registry, &leader.SystemMetricsSampler{})
	require.NoError(t, err)

	dnsTable := tables.NewDNSTable()
	a := netip.MustParseAddr("10.0.0.5")
	b := netip.MustParseAddr("8.8.8.8")
	now := time.Now()
	dnsTable.Observe(packet.DNSPacket{TransactionID: 7, QName: "example.com", ClientAddr: a, ServerAddr: b}, now)

	runner := NewRunner(time.Hour, tables.NewTCPTable(1<<20, time.Minute), tables.NewDot11Table(), dnsTable, client)

	runner.tick(context.Background())
	runner.tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 6, calls, "a rejected report is not retried and the next tick proceeds normally")

	dnsMetrics := dnsTable.CalculateMetrics(now, time.Hour)
	require.EqualValues(t, 1, dnsMetrics.TotalQueries, "a failed flush never rolls table state back or forward")
}

func TestRunner_TCPSessionReportedThenAbsentNextTick(t *testing.T) {
	var reports [][]byte
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/taps/tables/tcp" {
			mu.Lock()
			reports = append(reports, []byte(r.URL.Path))
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := metrics.NewRegistry()
	sampler := &leader.SystemMetricsSampler{}
	client, err := leader.New(leader.Config{URI: server.URL, Secret: "x"}, "test", registry, sampler)
	require.NoError(t, err)

	tcpTable := tables.NewTCPTable(1<<20, time.Minute)
	runner := NewRunner(time.Hour, tcpTable, tables.NewDot11Table(), tables.NewDNSTable(), client)

	a := netip.MustParseAddr("10.0.0.1")
	b := netip.MustParseAddr("10.0.0.2")
	now := time.Now()
	tcpTable.Observe(packet.TcpSegment{
		SrcIP: a, DstIP: b, SrcPort: 1000, DstPort: 80,
		Flags: packet.TCPFlags{FIN: true}, Timestamp: now,
	}, now)
	tcpTable.Observe(packet.TcpSegment{
		SrcIP: b, DstIP: a, SrcPort: 80, DstPort: 1000,
		Flags: packet.TCPFlags{FIN: true}, Timestamp: now,
	}, now)

	runner.tick(context.Background())
	require.Len(t, reports, 1)

	runner.tick(context.Background())
	require.Equal(t, 0, tcpTable.ProcessReport(time.Now()).LiveCount)
}
