package tables

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/packet"
)

func TestDNSPairing(t *testing.T) {
	table := NewDNSTable()
	client := netip.MustParseAddr("10.0.0.5")
	server := netip.MustParseAddr("8.8.8.8")
	base := time.Unix(0, 0)

	table.Observe(packet.DNSPacket{
		TransactionID: 0x1234,
		QR:            false,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
	}, base.Add(100*time.Millisecond))

	table.Observe(packet.DNSPacket{
		TransactionID: 0x1234,
		QR:            true,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
		ResponseCode:  packet.DNSNoError,
	}, base.Add(180*time.Millisecond))

	metrics := table.CalculateMetrics(base.Add(time.Second), 10*time.Second)
	require.Equal(t, uint64(1), metrics.TotalQueries)
	require.Equal(t, uint64(1), metrics.TotalResponses)
	assert.InDelta(t, 80_000, metrics.MeanLatencyMicros, 1_000)

	report := table.ProcessReport(base.Add(time.Second), 10*time.Second)
	require.Len(t, report.Matches, 1)
	assert.Equal(t, "example.com", report.Matches[0].QName)
}

func TestDNSUnmatchedResponse(t *testing.T) {
	table := NewDNSTable()
	client := netip.MustParseAddr("10.0.0.5")
	server := netip.MustParseAddr("8.8.8.8")

	table.Observe(packet.DNSPacket{
		TransactionID: 0xBEEF,
		QR:            true,
		QName:         "nope.example.com",
		ClientAddr:    client,
		ServerAddr:    server,
	}, time.Unix(0, 0))

	metrics := table.CalculateMetrics(time.Unix(1, 0), 10*time.Second)
	assert.Equal(t, uint64(1), metrics.UnmatchedResponses)
}

func TestDNSUnmatchedQueryPrunedAfterFlushInterval(t *testing.T) {
	table := NewDNSTable()
	client := netip.MustParseAddr("10.0.0.5")
	server := netip.MustParseAddr("8.8.8.8")
	base := time.Unix(0, 0)

	table.Observe(packet.DNSPacket{
		TransactionID: 1,
		QR:            false,
		QName:         "slow.example.com",
		ClientAddr:    client,
		ServerAddr:    server,
	}, base)

	later := base.Add(20 * time.Second)
	metrics := table.CalculateMetrics(later, 10*time.Second)
	assert.Equal(t, uint64(1), metrics.UnmatchedQueries)

	report := table.ProcessReport(later, 10*time.Second)
	assert.Empty(t, report.Matches)

	metrics = table.CalculateMetrics(later.Add(time.Second), 10*time.Second)
	assert.Equal(t, uint64(1), metrics.UnmatchedQueries, "an already-pruned query stays counted once, not twice")
}
