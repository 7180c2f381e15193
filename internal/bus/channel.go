package bus

import (
	"sync"

	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/metrics"
)

// Channel is a named, typed, bounded queue with non-blocking send-time
// metrics accounting. Producers call Send; a single dedicated
// consumer calls Receive in a loop until it reports disconnected.
type Channel[T any] struct {
	name     string
	capacity int
	ch       chan T
	registry *metrics.Registry

	// sendMu serializes the "send + metrics update" pair per channel so the
	// watermark reading can never observe a torn update from a concurrent
	// producer.
	sendMu sync.Mutex
}

func newChannel[T any](name string, capacity int, registry *metrics.Registry) *Channel[T] {
	registry.RecordChannelCapacity(name, capacity)
	return &Channel[T]{
		name:     name,
		capacity: capacity,
		ch:       make(chan T, capacity),
		registry: registry,
	}
}

// Send is non-blocking. On success it enqueues item and records watermark,
// throughput, and processed bytes (capacity is recorded once, by
// newChannel); on failure (queue full) it drops item and increments the
// channel's error counter. It never blocks.
func (c *Channel[T]) Send(item T, length int) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case c.ch <- item:
		c.registry.RecordChannelWatermark(c.name, int64(len(c.ch)))
		c.registry.IncrementChannelThroughputMessages(c.name, 1)
		c.registry.IncrementChannelThroughputBytes(c.name, uint64(length))
		c.registry.RecordProcessedBytes(uint64(length))
		return true
	default:
		c.registry.IncrementChannelErrors(c.name, 1)
		log.GetLogger().WithField("channel", c.name).Debug("channel full, dropping packet")
		return false
	}
}

// Receive blocks until an item is available or the channel is closed. ok is
// false once the channel is closed and drained, signaling the consumer to
// terminate: a disconnected pipeline is fatal.
func (c *Channel[T]) Receive() (item T, ok bool) {
	item, ok = <-c.ch
	return item, ok
}

// Close closes the channel, making Receive return ok=false once drained.
func (c *Channel[T]) Close() {
	close(c.ch)
}

// Name returns the channel's stable wire-visible identifier.
func (c *Channel[T]) Name() string {
	return c.name
}
