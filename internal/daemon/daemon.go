// Package daemon assembles the tap's core components (metrics registry,
// message bus, protocol tables, processor fan-out, periodic job runner,
// and leader link) into one running process, and exposes the local
// control channel used by the CLI.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/otus-tap/agent/internal/bus"
	"github.com/otus-tap/agent/internal/command"
	"github.com/otus-tap/agent/internal/config"
	"github.com/otus-tap/agent/internal/decode"
	"github.com/otus-tap/agent/internal/leader"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/metrics"
	"github.com/otus-tap/agent/internal/processor"
	"github.com/otus-tap/agent/internal/scheduler"
	"github.com/otus-tap/agent/internal/state"
	"github.com/otus-tap/agent/internal/tables"
)

// Version is the build version reported to the leader and over the local
// control channel. Overridden at link time in release builds.
var Version = "0.1.0-dev"

// Daemon owns every long-lived component of a running tap process.
type Daemon struct {
	cfg        *config.GlobalConfig
	configPath string

	registry *metrics.Registry
	bus      *bus.Bus
	state    *state.SystemState

	arp   *tables.ARPTable
	dns   *tables.DNSTable
	dot11 *tables.Dot11Table
	tcp   *tables.TCPTable

	fanout  *processor.Fanout
	runner  *scheduler.Runner
	sampler *leader.SystemMetricsSampler
	leader  *leader.Client

	metricsServer *metrics.Server
	udsServer     *command.UDSServer

	cancel context.CancelFunc
}

// New wires every component from cfg. It does not start anything; call
// Start to begin serving.
func New(cfg *config.GlobalConfig, configPath string) (*Daemon, error) {
	registry := metrics.NewRegistry()

	b := bus.New(bus.Config{
		EthernetBrokerCapacity: cfg.Performance.EthernetBrokerBufferCapacity,
		WifiBrokerCapacity:     cfg.Performance.WifiBrokerBufferCapacity,
		TcpPipelineCapacity:    cfg.Protocols.TCP.PipelineSize,
	}, registry)

	sampler, err := leader.NewSystemMetricsSampler()
	if err != nil {
		return nil, fmt.Errorf("could not start system metrics sampler: %w", err)
	}

	leaderClient, err := leader.New(leader.Config{
		URI:                 cfg.General.LeaderURI,
		Secret:              cfg.General.LeaderSecret,
		AcceptInsecureCerts: cfg.General.AcceptInsecureCerts,
	}, Version, registry, sampler)
	if err != nil {
		return nil, fmt.Errorf("could not construct leader client: %w", err)
	}

	arp := tables.NewARPTable(cfg.Protocols.ARP.MaxEntriesPerMAC)
	dns := tables.NewDNSTable()
	dot11 := tables.NewDot11Table()
	tcp := tables.NewTCPTable(cfg.Protocols.TCP.ReassemblyBufferSize,
		time.Duration(cfg.Protocols.TCP.SessionTimeoutSeconds)*time.Second)

	tickInterval := time.Duration(cfg.Reporting.TickIntervalSeconds) * time.Second
	runner := scheduler.NewRunner(tickInterval, tcp, dot11, dns, leaderClient)

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		registry:   registry,
		bus:        b,
		state:      state.New(),
		arp:        arp,
		dns:        dns,
		dot11:      dot11,
		tcp:        tcp,
		fanout:     processor.New(),
		runner:     runner,
		sampler:    sampler,
		leader:     leaderClient,
	}

	if cfg.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, registry.Gatherer())
	}

	handler := command.NewCommandHandler(registry, Version, d.Reload, d.RequestStop)
	d.udsServer = command.NewUDSServer(cfg.Control.Socket, handler)

	return d, nil
}

// Start spawns every worker and blocks until ctx is canceled, a supervised
// component fails, or a fatal pipeline disconnect terminates the process.
// The processor fan-out (panic-per-worker, never expected to return) is
// supervised separately by conc; the sampler, runner, metrics server, and
// UDS server are supervised together by an errgroup, since they are
// expected to run and stop as one group and the first one to fail should
// cancel the rest.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.spawnProcessors()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.sampler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		d.runner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		interval := time.Duration(d.cfg.Reporting.TickIntervalSeconds) * time.Second
		d.leader.RunStatusLoop(gctx, interval)
		return nil
	})
	if d.metricsServer != nil {
		g.Go(func() error {
			if err := d.metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := d.udsServer.Start(gctx); err != nil && err != context.Canceled {
			return fmt.Errorf("uds server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.GetLogger().WithError(err).Error("supervised component failed, shutting down")
		return err
	}
	return nil
}

// spawnProcessors starts one fan-out worker per channel: a decoder worker
// per broker channel, and a protocol processor per typed pipeline.
func (d *Daemon) spawnProcessors() {
	ethDecoder := decode.NewEthernetDecoder(d.bus)
	d.fanout.Spawn(bus.EthernetBroker, func() bool {
		raw, ok := d.bus.EthernetBroker.Receive()
		if ok {
			ethDecoder.Decode(raw)
		}
		return ok
	})

	dot11Decoder := decode.NewDot11Decoder(d.bus)
	d.fanout.Spawn(bus.Dot11Broker, func() bool {
		raw, ok := d.bus.Dot11Broker.Receive()
		if ok {
			dot11Decoder.Decode(raw)
		}
		return ok
	})

	ethernet := processor.NewEthernetProcessor()
	d.fanout.Spawn(bus.EthernetPipeline, func() bool {
		_, ok := d.bus.EthernetPipeline.Receive()
		if ok {
			ethernet.Process()
		}
		return ok
	})

	arp := processor.NewARPProcessor(d.arp)
	d.fanout.Spawn(bus.ArpPipeline, func() bool {
		pkt, ok := d.bus.ArpPipeline.Receive()
		if ok {
			arp.Process(pkt)
		}
		return ok
	})

	tcp := processor.NewTCPProcessor(d.tcp)
	d.fanout.Spawn(bus.TcpPipeline, func() bool {
		seg, ok := d.bus.TcpPipeline.Receive()
		if ok {
			tcp.Process(seg)
		}
		return ok
	})

	udp := processor.NewUDPProcessor()
	d.fanout.Spawn(bus.UdpPipeline, func() bool {
		_, ok := d.bus.UdpPipeline.Receive()
		if ok {
			udp.Process()
		}
		return ok
	})

	dns := processor.NewDNSProcessor(d.dns, d.state)
	d.fanout.Spawn(bus.DnsPipeline, func() bool {
		pkt, ok := d.bus.DnsPipeline.Receive()
		if ok {
			dns.Process(pkt)
		}
		return ok
	})

	dot11 := processor.NewDot11Processor(d.dot11)
	d.fanout.Spawn(bus.Dot11FramesPipeline, func() bool {
		frame, ok := d.bus.Dot11FramesPipeline.Receive()
		if ok {
			dot11.Process(frame)
		}
		return ok
	})
}

// Reload re-reads configuration from configPath and applies the subset
// that is safe to change without restarting: the leader link and table
// tuning. The bus topology (channel capacities) is fixed at process
// start and is not affected by reload.
func (d *Daemon) Reload() error {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("could not reload config: %w", err)
	}

	if err := d.leader.ApplyConfig(leader.Config{
		URI:                 newCfg.General.LeaderURI,
		Secret:              newCfg.General.LeaderSecret,
		AcceptInsecureCerts: newCfg.General.AcceptInsecureCerts,
	}); err != nil {
		return fmt.Errorf("could not apply leader config: %w", err)
	}

	d.tcp.ApplyTuning(newCfg.Protocols.TCP.ReassemblyBufferSize,
		time.Duration(newCfg.Protocols.TCP.SessionTimeoutSeconds)*time.Second)
	d.arp.SetMaxEntriesPerMAC(newCfg.Protocols.ARP.MaxEntriesPerMAC)

	d.cfg = newCfg
	log.GetLogger().WithField("leader_uri", newCfg.General.LeaderURI).Info("configuration reloaded")
	return nil
}

// RequestStop marks the daemon as shutting down and cancels its run
// context, triggering a graceful stop. It returns immediately; callers
// waiting for full shutdown should wait on Start's return.
func (d *Daemon) RequestStop() {
	d.state.MarkShuttingDown()
	if d.cancel != nil {
		d.cancel()
	}
}

// Stop gracefully shuts down the metrics server and UDS server, combining
// any errors from either via multierr rather than reporting only the
// first.
func (d *Daemon) Stop(ctx context.Context) error {
	d.state.MarkShuttingDown()

	var err error
	if d.metricsServer != nil {
		err = multierr.Append(err, d.metricsServer.Stop(ctx))
	}
	err = multierr.Append(err, d.udsServer.Stop())
	d.bus.Close()
	return err
}
