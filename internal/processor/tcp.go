package processor

import (
	"time"

	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/tables"
)

// TCPProcessor locates or creates the session for each segment, advances
// its state machine, and folds payload bytes into the reassembly buffer.
type TCPProcessor struct {
	table *tables.TCPTable
}

// NewTCPProcessor constructs a TCP processor bound to table.
func NewTCPProcessor(table *tables.TCPTable) *TCPProcessor {
	return &TCPProcessor{table: table}
}

// Process folds one decoded segment into the session table.
func (p *TCPProcessor) Process(seg packet.TcpSegment) {
	p.table.Observe(seg, time.Now())
}
