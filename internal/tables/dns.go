package tables

import (
	"math"
	"net/netip"
	"sync"
	"time"

	"github.com/otus-tap/agent/internal/packet"
)

// dnsKey identifies an outstanding query by transaction ID, the
// (client, server) address pair regardless of which side sent which
// packet, and the queried name ("match by (txid, client<->server,
// qname)").
type dnsKey struct {
	txid  uint16
	addrA netip.Addr
	addrB netip.Addr
	qname string
}

func newDNSKey(txid uint16, a, b netip.Addr, qname string) dnsKey {
	if a.Compare(b) < 0 {
		return dnsKey{txid: txid, addrA: a, addrB: b, qname: qname}
	}
	return dnsKey{txid: txid, addrA: b, addrB: a, qname: qname}
}

// DNSMatch is one resolved query-response pair, ready for reporting.
type DNSMatch struct {
	QName         string                 `json:"qname"`
	QType         uint16                 `json:"qtype"`
	ResponseCode  packet.DNSResponseCode `json:"response_code"`
	LatencyMicros int64                  `json:"latency_micros"`
	Answers       []string               `json:"answers"`
}

// DNSMetrics is the derived-metrics view computed by CalculateMetrics,
// embedded in every DNS report.
type DNSMetrics struct {
	TotalQueries       uint64            `json:"total_queries"`
	TotalResponses     uint64            `json:"total_responses"`
	UnmatchedQueries   uint64            `json:"unmatched_queries"`
	UnmatchedResponses uint64            `json:"unmatched_responses"`
	NXRate             float64           `json:"nx_rate"`
	MeanLatencyMicros  int64             `json:"mean_latency_micros"`
	PerQTypeCounts     map[uint16]uint64 `json:"per_qtype_counts"`
	MeanQNameEntropy   float64           `json:"mean_qname_entropy"`
}

// DNSReport is the snapshot emitted by ProcessReport.
type DNSReport struct {
	Matches []DNSMatch `json:"matches"`
	Metrics DNSMetrics `json:"metrics"`
}

// DNSTable tracks outstanding queries, pairs them with responses, and
// accumulates derived metrics.
type DNSTable struct {
	mu sync.Mutex

	outstanding map[dnsKey]time.Time
	matches     []DNSMatch
	nxCount     uint64

	unmatchedResponses uint64
	unmatchedQueries   uint64
	totalQueries       uint64
	totalResponses     uint64
}

// NewDNSTable constructs an empty DNS table.
func NewDNSTable() *DNSTable {
	return &DNSTable{
		outstanding: make(map[dnsKey]time.Time),
	}
}

// Observe records a query or pairs a response with its outstanding query.
func (t *DNSTable) Observe(p packet.DNSPacket, now time.Time) {
	t.observe(p, now, false)
}

// ObserveDuringShutdown is identical to Observe except that, when
// shuttingDown is true, an incoming query is not inserted into the
// outstanding set: the daemon is exiting and no response will ever arrive
// to pair with it, so recording it would only leak a stale entry until the
// next report flush prunes it. Used by the DNS processor, which consults
// SystemState for this.
func (t *DNSTable) ObserveDuringShutdown(p packet.DNSPacket, now time.Time, shuttingDown bool) {
	t.observe(p, now, shuttingDown)
}

func (t *DNSTable) observe(p packet.DNSPacket, now time.Time, skipQueryInsert bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := newDNSKey(p.TransactionID, p.ClientAddr, p.ServerAddr, p.QName)

	if !p.QR {
		t.totalQueries++
		if !skipQueryInsert {
			t.outstanding[key] = now
		}
		return
	}

	t.totalResponses++
	queryTime, ok := t.outstanding[key]
	if !ok {
		t.unmatchedResponses++
		return
	}

	delete(t.outstanding, key)
	t.matches = append(t.matches, DNSMatch{
		QName:         p.QName,
		QType:         p.QType,
		ResponseCode:  p.ResponseCode,
		LatencyMicros: now.Sub(queryTime).Microseconds(),
		Answers:       p.Answers,
	})
	if p.ResponseCode == packet.DNSNXDomain {
		t.nxCount++
	}
}

// CalculateMetrics computes the derived metrics at tick time: totals,
// unmatched counts, nx_rate, mean latency, per-qtype counts, and mean
// qname-character entropy. Outstanding queries older than flushInterval
// count toward UnmatchedQueries but are not pruned here (pruning happens
// in ProcessReport).
func (t *DNSTable) CalculateMetrics(now time.Time, flushInterval time.Duration) DNSMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	var staleQueries uint64
	for _, queried := range t.outstanding {
		if now.Sub(queried) > flushInterval {
			staleQueries++
		}
	}

	perQType := make(map[uint16]uint64, len(t.matches))
	var latencySumMicros int64
	var entropySum float64
	for _, m := range t.matches {
		perQType[m.QType]++
		latencySumMicros += m.LatencyMicros
		entropySum += qnameEntropy(m.QName)
	}

	var meanLatencyMicros int64
	var meanEntropy float64
	if len(t.matches) > 0 {
		meanLatencyMicros = latencySumMicros / int64(len(t.matches))
		meanEntropy = entropySum / float64(len(t.matches))
	}

	var nxRate float64
	if len(t.matches) > 0 {
		nxRate = float64(t.nxCount) / float64(len(t.matches))
	}

	return DNSMetrics{
		TotalQueries:       t.totalQueries,
		TotalResponses:     t.totalResponses,
		UnmatchedQueries:   t.unmatchedQueries + staleQueries,
		UnmatchedResponses: t.unmatchedResponses,
		NXRate:             nxRate,
		MeanLatencyMicros:  meanLatencyMicros,
		PerQTypeCounts:     perQType,
		MeanQNameEntropy:   meanEntropy,
	}
}

// ProcessReport serializes the accumulated matches, then drops them from
// the table. Outstanding queries older than one flush interval are pruned
// and counted as unmatched.
func (t *DNSTable) ProcessReport(now time.Time, flushInterval time.Duration) DNSReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := DNSReport{Matches: t.matches}
	t.matches = nil
	t.nxCount = 0

	for key, queried := range t.outstanding {
		if now.Sub(queried) > flushInterval {
			delete(t.outstanding, key)
			t.unmatchedQueries++
		}
	}

	return report
}

// qnameEntropy computes the Shannon entropy (bits/char) of a qname's byte
// distribution, used as a crude DGA/randomness signal.
func qnameEntropy(qname string) float64 {
	if len(qname) == 0 {
		return 0
	}
	var counts [256]int
	for i := 0; i < len(qname); i++ {
		counts[qname[i]]++
	}
	n := float64(len(qname))
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
