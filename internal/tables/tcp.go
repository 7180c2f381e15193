package tables

import (
	"encoding/json"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/otus-tap/agent/internal/packet"
)

// SessionState is the TCP session state machine.
type SessionState int

const (
	SessionNew SessionState = iota
	SessionEstablished
	SessionClosing
	SessionClosed
	SessionReset
	SessionEvicted
)

func (s SessionState) String() string {
	switch s {
	case SessionNew:
		return "NEW"
	case SessionEstablished:
		return "ESTABLISHED"
	case SessionClosing:
		return "CLOSING"
	case SessionClosed:
		return "CLOSED"
	case SessionReset:
		return "RESET"
	case SessionEvicted:
		return "EVICTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON reports the state by its wire name, not its ordinal.
func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// tcpKey is the normalized 5-tuple: the two endpoints ordered so that
// (A,B) and (B,A) traffic hash to the same session.
type tcpKey struct {
	addrA netip.Addr
	portA uint16
	addrB netip.Addr
	portB uint16
}

func newTCPKey(srcIP, dstIP netip.Addr, srcPort, dstPort uint16) (key tcpKey, srcIsA bool) {
	if cmp := srcIP.Compare(dstIP); cmp < 0 || (cmp == 0 && srcPort < dstPort) {
		return tcpKey{addrA: srcIP, portA: srcPort, addrB: dstIP, portB: dstPort}, true
	}
	return tcpKey{addrA: dstIP, portA: dstPort, addrB: srcIP, portB: srcPort}, false
}

// directionState is the per-direction reassembly and flag-observation state
// for one side of a session.
type directionState struct {
	nextSeq        uint32
	seqInitialized bool
	bufferedBytes  int
	sawSYN         bool
	sawFIN         bool
	retransmits    uint64
	outOfOrder     uint64
}

// Session holds the full state for one normalized 5-tuple.
type Session struct {
	Key          tcpKey
	State        SessionState
	FirstSeen    time.Time
	LastActivity time.Time

	dirAtoB directionState
	dirBtoA directionState
}

// BytesBuffered returns the in-order payload bytes buffered in each
// direction, A-to-B and B-to-A respectively.
func (s *Session) BytesBuffered() (aToB, bToA int) {
	return s.dirAtoB.bufferedBytes, s.dirBtoA.bufferedBytes
}

// SessionKey is the reportable form of the normalized 5-tuple. Endpoint A
// always orders before endpoint B, so (A,B) and (B,A) traffic report under
// the same key.
type SessionKey struct {
	IPA   string `json:"ip_a"`
	PortA uint16 `json:"port_a"`
	IPB   string `json:"ip_b"`
	PortB uint16 `json:"port_b"`
}

// TCPSessionReport is the reportable view of one closed/reset/evicted
// session, emitted exactly once by ProcessReport.
type TCPSessionReport struct {
	Key          SessionKey   `json:"key"`
	State        SessionState `json:"state"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastActivity time.Time    `json:"last_activity"`
	BytesAtoB    int          `json:"bytes_a_to_b"`
	BytesBtoA    int          `json:"bytes_b_to_a"`
	Retransmits  uint64       `json:"retransmits"`
	OutOfOrder   uint64       `json:"out_of_order"`
}

// TCPReport is the snapshot produced each tick: sessions that finished
// this tick, the tick's derived metrics, and a size summary of the
// still-live set.
type TCPReport struct {
	Closed    []TCPSessionReport `json:"closed"`
	Metrics   TCPMetrics         `json:"metrics"`
	LiveCount int                `json:"live_count"`
}

// TCPMetrics is the derived-metrics view computed by CalculateMetrics,
// embedded in every TCP report. State counts are keyed by wire name.
type TCPMetrics struct {
	ActiveCount        int                `json:"active_sessions"`
	CountByState       map[string]int     `json:"sessions_by_state"`
	MeanDurationMicros int64              `json:"mean_duration_micros"`
	BytesHistogram     []int              `json:"bytes_histogram"`
	TopTalkers         []TCPSessionReport `json:"top_talkers"`
	OverflowEvictions  uint64             `json:"overflow_evictions"`
}

// TCPTable is the concurrent map from normalized 5-tuple to Session
// the most intricate of the protocol tables.
type TCPTable struct {
	mu sync.Mutex

	sessions             map[tcpKey]*Session
	reassemblyBufferSize int
	sessionTimeout       time.Duration
	overflowEvictions    uint64
}

// NewTCPTable constructs an empty TCP session table.
func NewTCPTable(reassemblyBufferSize int, sessionTimeout time.Duration) *TCPTable {
	return &TCPTable{
		sessions:             make(map[tcpKey]*Session),
		reassemblyBufferSize: reassemblyBufferSize,
		sessionTimeout:       sessionTimeout,
	}
}

// ApplyTuning swaps in new reassembly-buffer and idle-timeout limits, as
// applied by a configuration reload. Existing sessions are judged against
// the new limits from the next Observe or sweep onward.
func (t *TCPTable) ApplyTuning(reassemblyBufferSize int, sessionTimeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reassemblyBufferSize = reassemblyBufferSize
	t.sessionTimeout = sessionTimeout
}

// Observe locates or creates the session for this segment, advances its
// state machine, and folds the segment's payload into the appropriate
// direction's reassembly buffer. A direction whose buffered bytes would
// exceed reassemblyBufferSize is evicted immediately: the session's state
// becomes EVICTED and the overflow counter increments in this same call,
// though the session is not removed from the map until the next
// ProcessReport sweep (spec boundary: "evicted in the same tick that
// observes the overflow").
func (t *TCPTable) Observe(seg packet.TcpSegment, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, srcIsA := newTCPKey(seg.SrcIP, seg.DstIP, seg.SrcPort, seg.DstPort)

	session, ok := t.sessions[key]
	if !ok {
		session = &Session{Key: key, State: SessionNew, FirstSeen: now}
		t.sessions[key] = session
	}
	session.LastActivity = now

	var dir, peer *directionState
	if srcIsA {
		dir, peer = &session.dirAtoB, &session.dirBtoA
	} else {
		dir, peer = &session.dirBtoA, &session.dirAtoB
	}

	if seg.Flags.RST {
		session.State = SessionReset
		return
	}

	if seg.Flags.SYN {
		dir.sawSYN = true
	}

	if len(seg.Payload) > 0 {
		switch {
		case !dir.seqInitialized:
			dir.seqInitialized = true
			dir.nextSeq = seg.Seq + uint32(len(seg.Payload))
			dir.bufferedBytes += len(seg.Payload)
		case seg.Seq == dir.nextSeq:
			dir.nextSeq += uint32(len(seg.Payload))
			dir.bufferedBytes += len(seg.Payload)
		case seg.Seq < dir.nextSeq:
			dir.retransmits++
		default:
			dir.outOfOrder++
		}

		if dir.bufferedBytes > t.reassemblyBufferSize && session.State != SessionEvicted {
			session.State = SessionEvicted
			t.overflowEvictions++
			return
		}
	}

	if seg.Flags.FIN {
		dir.sawFIN = true
		if session.State == SessionNew || session.State == SessionEstablished {
			session.State = SessionClosing
		}
		if dir.sawFIN && peer.sawFIN {
			session.State = SessionClosed
		}
		return
	}

	if session.State == SessionNew && dir.bufferedBytes > 0 && peer.bufferedBytes > 0 {
		session.State = SessionEstablished
	} else if session.State == SessionNew && dir.sawSYN && peer.sawSYN {
		session.State = SessionEstablished
	}
}

// CalculateMetrics computes the tick's derived metrics: active session
// count, counts per state, mean session duration, a per-session bytes
// histogram, and the top-N talkers by total bytes.
func (t *TCPTable) CalculateMetrics(now time.Time, topN int) TCPMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	metrics := TCPMetrics{
		CountByState:      make(map[string]int),
		OverflowEvictions: t.overflowEvictions,
	}

	var durationSum time.Duration
	var talkers []TCPSessionReport

	for _, s := range t.sessions {
		metrics.CountByState[s.State.String()]++
		if s.State == SessionNew || s.State == SessionEstablished || s.State == SessionClosing {
			metrics.ActiveCount++
		}
		durationSum += s.LastActivity.Sub(s.FirstSeen)
		aToB, bToA := s.BytesBuffered()
		metrics.BytesHistogram = append(metrics.BytesHistogram, aToB+bToA)
		talkers = append(talkers, sessionReport(s, aToB, bToA))
	}

	if len(t.sessions) > 0 {
		metrics.MeanDurationMicros = (durationSum / time.Duration(len(t.sessions))).Microseconds()
	}

	sort.Slice(talkers, func(i, j int) bool {
		return (talkers[i].BytesAtoB + talkers[i].BytesBtoA) > (talkers[j].BytesAtoB + talkers[j].BytesBtoA)
	})
	if topN > 0 && len(talkers) > topN {
		talkers = talkers[:topN]
	}
	metrics.TopTalkers = talkers

	return metrics
}

// ProcessReport sweeps the table: sessions idle for longer than
// sessionTimeout are marked EVICTED, and any session in CLOSED, RESET, or
// EVICTED state is snapshotted into the report and removed. NEW,
// ESTABLISHED, and CLOSING sessions are left untouched and are not part
// of the report beyond the live-set size summary.
func (t *TCPTable) ProcessReport(now time.Time) TCPReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	var report TCPReport

	for key, s := range t.sessions {
		if s.State != SessionEvicted && now.Sub(s.LastActivity) > t.sessionTimeout {
			s.State = SessionEvicted
		}

		switch s.State {
		case SessionClosed, SessionReset, SessionEvicted:
			aToB, bToA := s.BytesBuffered()
			report.Closed = append(report.Closed, sessionReport(s, aToB, bToA))
			delete(t.sessions, key)
		}
	}

	report.LiveCount = len(t.sessions)
	return report
}

func sessionReport(s *Session, aToB, bToA int) TCPSessionReport {
	return TCPSessionReport{
		Key: SessionKey{
			IPA:   s.Key.addrA.String(),
			PortA: s.Key.portA,
			IPB:   s.Key.addrB.String(),
			PortB: s.Key.portB,
		},
		State:        s.State,
		FirstSeen:    s.FirstSeen,
		LastActivity: s.LastActivity,
		BytesAtoB:    aToB,
		BytesBtoA:    bToA,
		Retransmits:  s.dirAtoB.retransmits + s.dirBtoA.retransmits,
		OutOfOrder:   s.dirAtoB.outOfOrder + s.dirBtoA.outOfOrder,
	}
}
