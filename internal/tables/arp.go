// Package tables implements the ARP, DNS, 802.11, and TCP protocol state
// tables: independently locked in-memory structures mutated by the
// processor fan-out and periodically snapshotted into leader reports.
package tables

import (
	"sync"
	"time"

	"github.com/otus-tap/agent/internal/packet"
)

// ARPTable maps sender MAC to a set of (sender IP -> last-seen) observations.
// No eviction policy is dictated upstream; this implementation adds a
// bounded LRU-by-last-seen cap per MAC so memory does not grow without
// bound.
type ARPTable struct {
	mu               sync.Mutex
	entries          map[string]map[string]int64 // senderMAC -> senderIP -> lastSeenEpochMicros
	maxEntriesPerMAC int
}

// NewARPTable constructs an ARP table with the given per-MAC eviction cap.
func NewARPTable(maxEntriesPerMAC int) *ARPTable {
	return &ARPTable{
		entries:          make(map[string]map[string]int64),
		maxEntriesPerMAC: maxEntriesPerMAC,
	}
}

// SetMaxEntriesPerMAC swaps the per-MAC eviction cap, as applied by a
// configuration reload. Entries already over a lowered cap shrink on
// their next Observe.
func (t *ARPTable) SetMaxEntriesPerMAC(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxEntriesPerMAC = n
}

// Observe upserts arp[sender_mac][sender_ip] = now, evicting the
// least-recently-seen IPs for that MAC until it is back within the per-MAC
// cap.
func (t *ARPTable) Observe(p packet.ARPPacket, now time.Time) {
	mac := p.SenderMAC.String()
	ip := p.SenderIP.String()
	micros := now.UnixMicro()

	t.mu.Lock()
	defer t.mu.Unlock()

	byIP, ok := t.entries[mac]
	if !ok {
		byIP = make(map[string]int64)
		t.entries[mac] = byIP
	}
	byIP[ip] = micros

	for t.maxEntriesPerMAC > 0 && len(byIP) > t.maxEntriesPerMAC {
		evictOldest(byIP)
	}
}

func evictOldest(byIP map[string]int64) {
	var oldestIP string
	var oldestTime int64
	first := true
	for ip, seen := range byIP {
		if first || seen < oldestTime {
			oldestIP, oldestTime, first = ip, seen, false
		}
	}
	delete(byIP, oldestIP)
}

// Snapshot returns a deep copy of the full table, taken under lock.
func (t *ARPTable) Snapshot() map[string]map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]map[string]int64, len(t.entries))
	for mac, byIP := range t.entries {
		cp := make(map[string]int64, len(byIP))
		for ip, seen := range byIP {
			cp[ip] = seen
		}
		out[mac] = cp
	}
	return out
}

// LastSeen returns the last-seen timestamp (epoch micros) for a given
// (mac, ip) pair, and whether it was found. Primarily for tests.
func (t *ARPTable) LastSeen(mac, ip string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byIP, ok := t.entries[mac]
	if !ok {
		return 0, false
	}
	v, ok := byIP[ip]
	return v, ok
}
