package processor

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/state"
	"github.com/otus-tap/agent/internal/tables"
)

func TestDNSProcessor_SkipsQueryDuringShutdown(t *testing.T) {
	table := tables.NewDNSTable()
	st := state.New()
	p := NewDNSProcessor(table, st)

	client := netip.MustParseAddr("10.0.0.5")
	server := netip.MustParseAddr("8.8.8.8")

	query := packet.DNSPacket{
		TransactionID: 0x1234,
		QR:            false,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
	}

	st.MarkShuttingDown()
	p.Process(query)

	response := packet.DNSPacket{
		TransactionID: 0x1234,
		QR:            true,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
		ResponseCode:  packet.DNSNoError,
	}
	table.Observe(response, time.Now())

	metrics := table.CalculateMetrics(time.Now(), time.Minute)
	require.EqualValues(t, 1, metrics.UnmatchedResponses, "response should be unmatched since the query was skipped")
}

func TestDNSProcessor_RecordsQueryWhenRunning(t *testing.T) {
	table := tables.NewDNSTable()
	st := state.New()
	p := NewDNSProcessor(table, st)

	client := netip.MustParseAddr("10.0.0.5")
	server := netip.MustParseAddr("8.8.8.8")

	p.Process(packet.DNSPacket{
		TransactionID: 0xabcd,
		QR:            false,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
	})

	table.Observe(packet.DNSPacket{
		TransactionID: 0xabcd,
		QR:            true,
		QName:         "example.com",
		ClientAddr:    client,
		ServerAddr:    server,
		ResponseCode:  packet.DNSNoError,
	}, time.Now())

	metrics := table.CalculateMetrics(time.Now(), time.Minute)
	require.EqualValues(t, 0, metrics.UnmatchedResponses)
}
