package tables

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/packet"
)

func mustHW(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	hw, err := net.ParseMAC(s)
	require.NoError(t, err)
	return hw
}

func TestARPLearn(t *testing.T) {
	table := NewARPTable(4096)
	mac := mustHW(t, "aa:bb:cc:dd:ee:ff")
	ip := netip.MustParseAddr("10.0.0.5")
	now := time.Unix(1000, 0)

	table.Observe(packet.ARPPacket{SenderMAC: mac, SenderIP: ip}, now)

	seen, ok := table.LastSeen(mac.String(), ip.String())
	require.True(t, ok)
	assert.Equal(t, now.UnixMicro(), seen)
}

func TestARPEvictsOldestWhenOverCap(t *testing.T) {
	table := NewARPTable(2)
	mac := mustHW(t, "aa:bb:cc:dd:ee:ff")
	base := time.Unix(1000, 0)

	table.Observe(packet.ARPPacket{SenderMAC: mac, SenderIP: netip.MustParseAddr("10.0.0.1")}, base)
	table.Observe(packet.ARPPacket{SenderMAC: mac, SenderIP: netip.MustParseAddr("10.0.0.2")}, base.Add(time.Second))
	table.Observe(packet.ARPPacket{SenderMAC: mac, SenderIP: netip.MustParseAddr("10.0.0.3")}, base.Add(2*time.Second))

	snap := table.Snapshot()
	assert.Len(t, snap[mac.String()], 2)
	_, hasOldest := snap[mac.String()]["10.0.0.1"]
	assert.False(t, hasOldest, "oldest entry should have been evicted")
}
