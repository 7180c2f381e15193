package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelAccounting(t *testing.T) {
	r := NewRegistry()

	r.RecordChannelCapacity("arp_pipeline", 512)
	r.RecordChannelWatermark("arp_pipeline", 3)
	r.IncrementChannelThroughputMessages("arp_pipeline", 5)
	r.IncrementChannelThroughputBytes("arp_pipeline", 640)
	r.IncrementChannelErrors("arp_pipeline", 2)

	util := r.SelectChannel("arp_pipeline")
	assert.Equal(t, 512, util.Capacity)
	assert.Equal(t, int64(3), util.Watermark)
	assert.Equal(t, uint64(5), util.ThroughputMessagesTotal)
	assert.Equal(t, uint64(640), util.ThroughputBytesTotal)
	assert.Equal(t, uint64(2), util.ErrorsTotal)
}

func TestSelectChannelUnknownReturnsZeroed(t *testing.T) {
	r := NewRegistry()
	util := r.SelectChannel("nonexistent")
	assert.Equal(t, "nonexistent", util.Name)
	assert.Zero(t, util.ThroughputMessagesTotal)
}

func TestProcessedBytesAverage(t *testing.T) {
	r := NewRegistry()
	r.RecordProcessedBytes(1000)
	r.RecordProcessedBytes(2000)

	pb := r.GetProcessedBytes()
	assert.Equal(t, uint64(3000), pb.Total)
	assert.Greater(t, pb.Average, 0.0)
}

func TestTimerSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Time("tick_duration", 10*time.Millisecond)
	r.Time("tick_duration", 20*time.Millisecond)
	r.Time("tick_duration", 30*time.Millisecond)

	snaps := r.GetTimerSnapshots()
	snap, ok := snaps["tick_duration"]
	assert.True(t, ok)
	assert.InDelta(t, 0.020, snap.Mean, 0.001)
	assert.GreaterOrEqual(t, snap.P99, snap.Mean)
}

func TestGaugeLongLastWriterWins(t *testing.T) {
	r := NewRegistry()
	r.SetGaugeLong("arp_table_size", 10)
	r.SetGaugeLong("arp_table_size", 42)

	gauges := r.GetGaugesLong()
	assert.Equal(t, int64(42), gauges["arp_table_size"])
}

func TestRecordCapture(t *testing.T) {
	r := NewRegistry()
	r.RecordCapture("eth0", CaptureState{Type: "pcap", Name: "eth0", Running: true, Received: 100})

	captures := r.GetCaptures()
	c, ok := captures["eth0"]
	assert.True(t, ok)
	assert.True(t, c.Running)
	assert.Equal(t, uint64(100), c.Received)
}
