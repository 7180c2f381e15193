// Package bus implements the typed, bounded, multi-pipeline message
// fabric that sits between capture/decoders and the protocol processors.
package bus

import (
	"github.com/otus-tap/agent/internal/metrics"
	"github.com/otus-tap/agent/internal/packet"
)

// Config sizes every named channel. Capacities not listed here
// (ethernet_pipeline=65536, arp/udp/dns_pipeline=512) are fixed constants.
type Config struct {
	EthernetBrokerCapacity int
	WifiBrokerCapacity     int
	TcpPipelineCapacity    int
}

const (
	ethernetPipelineCapacity = 65536
	arpPipelineCapacity      = 512
	udpPipelineCapacity      = 512
	dnsPipelineCapacity      = 512
)

// Bus owns the fixed set of named bounded channels. It is constructed once
// at startup; channel capacities never change for the lifetime of the
// process; the bus topology is fixed at process start.
type Bus struct {
	EthernetBroker      *Channel[packet.EthernetData]
	Dot11Broker         *Channel[packet.Dot11RawFrame]
	Dot11FramesPipeline *Channel[packet.Dot11Frame]
	EthernetPipeline    *Channel[packet.EthernetPacket]
	ArpPipeline         *Channel[packet.ARPPacket]
	TcpPipeline         *Channel[packet.TcpSegment]
	UdpPipeline         *Channel[packet.UDPPacket]
	DnsPipeline         *Channel[packet.DNSPacket]
}

// New constructs a Bus with every channel wired to registry for send-time
// metrics accounting.
func New(cfg Config, registry *metrics.Registry) *Bus {
	return &Bus{
		EthernetBroker:      newChannel[packet.EthernetData](EthernetBroker, cfg.EthernetBrokerCapacity, registry),
		Dot11Broker:         newChannel[packet.Dot11RawFrame](Dot11Broker, cfg.WifiBrokerCapacity, registry),
		Dot11FramesPipeline: newChannel[packet.Dot11Frame](Dot11FramesPipeline, cfg.WifiBrokerCapacity, registry),
		EthernetPipeline:    newChannel[packet.EthernetPacket](EthernetPipeline, ethernetPipelineCapacity, registry),
		ArpPipeline:         newChannel[packet.ARPPacket](ArpPipeline, arpPipelineCapacity, registry),
		TcpPipeline:         newChannel[packet.TcpSegment](TcpPipeline, cfg.TcpPipelineCapacity, registry),
		UdpPipeline:         newChannel[packet.UDPPacket](UdpPipeline, udpPipelineCapacity, registry),
		DnsPipeline:         newChannel[packet.DNSPacket](DnsPipeline, dnsPipelineCapacity, registry),
	}
}

// Close shuts down every channel, signaling fan-out workers to terminate.
func (b *Bus) Close() {
	b.EthernetBroker.Close()
	b.Dot11Broker.Close()
	b.Dot11FramesPipeline.Close()
	b.EthernetPipeline.Close()
	b.ArpPipeline.Close()
	b.TcpPipeline.Close()
	b.UdpPipeline.Close()
	b.DnsPipeline.Close()
}
