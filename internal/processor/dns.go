package processor

import (
	"time"

	"github.com/otus-tap/agent/internal/packet"
	"github.com/otus-tap/agent/internal/state"
	"github.com/otus-tap/agent/internal/tables"
)

// DNSProcessor updates the DNS table from each decoded query/response
// consulting SystemState to avoid recording new in-flight
// queries once the daemon has begun shutting down.
type DNSProcessor struct {
	table *tables.DNSTable
	state *state.SystemState
}

// NewDNSProcessor constructs a DNS processor bound to table and state.
func NewDNSProcessor(table *tables.DNSTable, systemState *state.SystemState) *DNSProcessor {
	return &DNSProcessor{table: table, state: systemState}
}

// Process pairs or records pkt against the DNS table.
func (p *DNSProcessor) Process(pkt packet.DNSPacket) {
	p.table.ObserveDuringShutdown(pkt, time.Now(), p.state.IsShuttingDown())
}
