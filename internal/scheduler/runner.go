// Package scheduler implements the periodic job runner: every tick it
// sweeps the TCP, 802.11, and DNS tables in that fixed order, computes
// their derived metrics, and hands the resulting reports to the leader
// link. This replaces an earlier, unrelated generic multi-pipeline job
// registry that does not fit the tap's single fixed-cadence tick model
// (see DESIGN.md).
package scheduler

import (
	"context"
	"time"

	"github.com/otus-tap/agent/internal/leader"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/tables"
)

// topTalkersN bounds the TCP metrics' top-talkers list.
const topTalkersN = 10

// Runner ticks on a fixed interval and drives report generation. It holds
// no lock of its own: each table is independently locked, and a failure
// tending one table never blocks or skips the others.
type Runner struct {
	interval         time.Duration
	dnsFlushInterval time.Duration

	tcp   *tables.TCPTable
	dot11 *tables.Dot11Table
	dns   *tables.DNSTable

	leader *leader.Client
}

// NewRunner constructs a Runner with the given tick interval (default:
// 10s) and table/leader handles.
func NewRunner(interval time.Duration, tcp *tables.TCPTable, dot11 *tables.Dot11Table, dns *tables.DNSTable, leaderClient *leader.Client) *Runner {
	return &Runner{
		interval:         interval,
		dnsFlushInterval: interval,
		tcp:              tcp,
		dot11:            dot11,
		dns:              dns,
		leader:           leaderClient,
	}
}

// Run blocks, ticking until ctx is canceled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs the fixed TCP -> 802.11 -> DNS sequence so report ordering is
// deterministic for the leader.
func (r *Runner) tick(ctx context.Context) {
	now := time.Now()

	r.withRecover("tcp", func() { r.runTCP(ctx, now) })
	r.withRecover("dot11", func() { r.runDot11(ctx, now) })
	r.withRecover("dns", func() { r.runDNS(ctx, now) })
}

// withRecover models the requirement that a lock-acquisition failure on
// one table is logged and that table skipped for the current tick: our
// tables use plain exclusive mutexes that block rather than fail to
// acquire, so there is no distinct "could not lock" outcome to trigger
// this path in practice. Recovering from any panic inside a table's tick
// keeps that guarantee faithful (one misbehaving table never stops the
// other two from being reported this tick) without pretending sync.Mutex
// can fail a non-blocking try-lock.
func (r *Runner) withRecover(table string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.GetLogger().WithField("table", table).WithField("panic", rec).
				Error("table tick failed, skipping this table for this cycle")
		}
	}()
	fn()
}

func (r *Runner) runTCP(ctx context.Context, now time.Time) {
	tcpMetrics := r.tcp.CalculateMetrics(now, topTalkersN)
	report := r.tcp.ProcessReport(now)
	report.Metrics = tcpMetrics
	if err := r.leader.SendReport(ctx, "tcp", report); err != nil {
		log.GetLogger().WithError(err).Warn("could not send tcp report to leader")
	}
}

func (r *Runner) runDot11(ctx context.Context, now time.Time) {
	report := r.dot11.ProcessReport(now)
	if err := r.leader.SendReport(ctx, "dot11", report); err != nil {
		log.GetLogger().WithError(err).Warn("could not send dot11 report to leader")
	}
}

func (r *Runner) runDNS(ctx context.Context, now time.Time) {
	dnsMetrics := r.dns.CalculateMetrics(now, r.dnsFlushInterval)
	report := r.dns.ProcessReport(now, r.dnsFlushInterval)
	report.Metrics = dnsMetrics
	if err := r.leader.SendReport(ctx, "dns", report); err != nil {
		log.GetLogger().WithError(err).Warn("could not send dns report to leader")
	}
}
