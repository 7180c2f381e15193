package processor

import (
	"time"

	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/tables"
)

// Dot11Processor updates the 802.11 table from each decoded frame.
type Dot11Processor struct {
	table *tables.Dot11Table
}

// NewDot11Processor constructs an 802.11 processor bound to table.
func NewDot11Processor(table *tables.Dot11Table) *Dot11Processor {
	return &Dot11Processor{table: table}
}

// Process folds one decoded frame into the 802.11 table.
func (p *Dot11Processor) Process(frame packet.Dot11Frame) {
	p.table.Observe(frame, time.Now())
}
