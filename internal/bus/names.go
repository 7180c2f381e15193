package bus

// Channel names are stable, wire-visible identifiers: every
// enumerated name below appears in the leader status report even when a
// channel is idle.
const (
	EthernetBroker      = "ethernet_broker"
	Dot11Broker         = "dot11_broker"
	Dot11FramesPipeline = "dot11_frames_pipeline"
	EthernetPipeline    = "ethernet_pipeline"
	ArpPipeline         = "arp_pipeline"
	TcpPipeline         = "tcp_pipeline"
	UdpPipeline         = "udp_pipeline"
	DnsPipeline         = "dns_pipeline"
)

// BusName groups channels the way the leader status report does
// (leaderlink.rs's EthernetChannelName/Dot11ChannelName enums).
type BusName string

const (
	EthernetBus BusName = "ethernet"
	WifiBus     BusName = "dot11"
)

// ChannelsByBus enumerates every channel name belonging to each named bus,
// in report order. Used to build the leader status report's `buses` field
// so idle channels still appear.
var ChannelsByBus = map[BusName][]string{
	EthernetBus: {EthernetBroker, EthernetPipeline, ArpPipeline, TcpPipeline, UdpPipeline, DnsPipeline},
	WifiBus:     {Dot11Broker, Dot11FramesPipeline},
}

// AllChannelNames is the full enumerated channel set.
var AllChannelNames = []string{
	EthernetBroker, Dot11Broker, Dot11FramesPipeline, EthernetPipeline,
	ArpPipeline, TcpPipeline, UdpPipeline, DnsPipeline,
}
