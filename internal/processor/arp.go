package processor

import (
	"time"

	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/tables"
)

// ARPProcessor updates the ARP table from each observed announcement.
type ARPProcessor struct {
	table *tables.ARPTable
}

// NewARPProcessor constructs an ARP processor bound to table.
func NewARPProcessor(table *tables.ARPTable) *ARPProcessor {
	return &ARPProcessor{table: table}
}

// Process upserts the sender MAC/IP observation with the current time.
func (p *ARPProcessor) Process(pkt packet.ARPPacket) {
	p.table.Observe(pkt, time.Now())
}
