package tables

import (
	"sync"
	"time"

	"github.com/otus-tap/agent/internal/packet"
)

// BSSIDState is the persistent identity knowledge kept for one access
// point, plus the per-tick RSSI samples accumulated since the last report.
type BSSIDState struct {
	SSID      string
	Channel   int
	Security  string
	Clients   map[string]struct{}
	rssiTicks []int
	LastSeen  time.Time
}

// ClientState is the persistent identity knowledge kept for one station.
type ClientState struct {
	AssociatedBSSIDs map[string]struct{}
	ProbedSSIDs      map[string]struct{}
	LastSeen         time.Time
}

// Dot11Report is the snapshot emitted by ProcessReport: per-BSSID and
// per-client summaries as of this tick, including the RSSI samples
// observed since the previous report.
type Dot11Report struct {
	BSSIDs  map[string]Dot11BSSIDSummary  `json:"bssids"`
	Clients map[string]Dot11ClientSummary `json:"clients"`
}

// Dot11BSSIDSummary is the reportable view of a BSSIDState.
type Dot11BSSIDSummary struct {
	SSID        string `json:"ssid"`
	Channel     int    `json:"channel"`
	Security    string `json:"security"`
	ClientCount int    `json:"client_count"`
	RSSISamples []int  `json:"rssi_samples"`
}

// Dot11ClientSummary is the reportable view of a ClientState.
type Dot11ClientSummary struct {
	AssociatedBSSIDs []string `json:"associated_bssids"`
	ProbedSSIDs      []string `json:"probed_ssids"`
}

// Dot11Table tracks BSSID and client state observed from decoded 802.11
// frames. BSSID identity (SSID, channel, security, known
// clients) and client identity (associated BSSIDs, probed SSIDs) persist
// across ticks; only the per-tick RSSI sample history is cleared on
// ProcessReport, so a quiet AP is still remembered in the next report even
// though its RSSI histogram resets to empty.
type Dot11Table struct {
	mu sync.Mutex

	bssids  map[string]*BSSIDState
	clients map[string]*ClientState
}

// NewDot11Table constructs an empty 802.11 table.
func NewDot11Table() *Dot11Table {
	return &Dot11Table{
		bssids:  make(map[string]*BSSIDState),
		clients: make(map[string]*ClientState),
	}
}

// Observe folds one decoded 802.11 frame into BSSID and client state.
func (t *Dot11Table) Observe(f packet.Dot11Frame, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bssid := f.BSSID.String()
	client := f.ClientMAC.String()

	switch f.Type {
	case packet.Dot11FrameBeacon:
		b := t.bssidState(bssid)
		b.SSID = f.SSID
		b.Channel = f.Channel
		b.Security = f.Security
		b.LastSeen = now
		b.rssiTicks = append(b.rssiTicks, f.RSSI)

	case packet.Dot11FrameProbeRequest:
		c := t.clientState(client)
		if f.SSID != "" {
			c.ProbedSSIDs[f.SSID] = struct{}{}
		}
		c.LastSeen = now

	case packet.Dot11FrameProbeResponse:
		b := t.bssidState(bssid)
		if f.SSID != "" {
			b.SSID = f.SSID
		}
		b.rssiTicks = append(b.rssiTicks, f.RSSI)
		b.LastSeen = now

	case packet.Dot11FrameData:
		b := t.bssidState(bssid)
		b.Clients[client] = struct{}{}
		b.rssiTicks = append(b.rssiTicks, f.RSSI)
		b.LastSeen = now

		c := t.clientState(client)
		c.AssociatedBSSIDs[bssid] = struct{}{}
		c.LastSeen = now

	default:
		// Dot11FrameOther carries no identity-bearing fields worth tracking.
	}
}

func (t *Dot11Table) bssidState(bssid string) *BSSIDState {
	b, ok := t.bssids[bssid]
	if !ok {
		b = &BSSIDState{Clients: make(map[string]struct{})}
		t.bssids[bssid] = b
	}
	return b
}

func (t *Dot11Table) clientState(client string) *ClientState {
	c, ok := t.clients[client]
	if !ok {
		c = &ClientState{
			AssociatedBSSIDs: make(map[string]struct{}),
			ProbedSSIDs:      make(map[string]struct{}),
		}
		t.clients[client] = c
	}
	return c
}

// ProcessReport snapshots every known BSSID and client, then clears each
// BSSID's per-tick RSSI sample history. Identity (SSID/channel/security,
// known clients, associated BSSIDs, probed SSIDs) is retained so a BSSID
// or client that goes quiet is still reported, just with an empty RSSI
// sample list.
func (t *Dot11Table) ProcessReport(now time.Time) Dot11Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	report := Dot11Report{
		BSSIDs:  make(map[string]Dot11BSSIDSummary, len(t.bssids)),
		Clients: make(map[string]Dot11ClientSummary, len(t.clients)),
	}

	for bssid, b := range t.bssids {
		samples := make([]int, len(b.rssiTicks))
		copy(samples, b.rssiTicks)
		report.BSSIDs[bssid] = Dot11BSSIDSummary{
			SSID:        b.SSID,
			Channel:     b.Channel,
			Security:    b.Security,
			ClientCount: len(b.Clients),
			RSSISamples: samples,
		}
		b.rssiTicks = nil
	}

	for client, c := range t.clients {
		report.Clients[client] = Dot11ClientSummary{
			AssociatedBSSIDs: keys(c.AssociatedBSSIDs),
			ProbedSSIDs:      keys(c.ProbedSSIDs),
		}
	}

	return report
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
