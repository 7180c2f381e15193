// Package decode adapts raw frames from the broker channels into the
// typed packet values the protocol pipelines consume. One decoder
// instance is owned by exactly one worker goroutine: the gopacket layer
// structs are cached per instance and reused across frames, so a decoder
// is not safe for concurrent use.
package decode

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/otus-tap/agent/internal/bus"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/packet"
)

// EthernetDecoder drains ethernet_broker and fans decoded layers out to
// the typed pipeline channels. Every packet value it emits owns copies of
// the header and payload bytes; nothing references the raw frame buffer
// after Decode returns.
type EthernetDecoder struct {
	bus *bus.Bus

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth layers.Ethernet
	arp layers.ARP
	ip4 layers.IPv4
	ip6 layers.IPv6
	tcp layers.TCP
	udp layers.UDP
	dns layers.DNS
}

// NewEthernetDecoder constructs a decoder emitting into b's pipelines.
func NewEthernetDecoder(b *bus.Bus) *EthernetDecoder {
	d := &EthernetDecoder{
		bus:     b,
		decoded: make([]gopacket.LayerType, 0, 8),
	}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.eth, &d.arp, &d.ip4, &d.ip6, &d.tcp, &d.udp, &d.dns)
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode parses one raw frame and sends each protocol layer it finds to
// the matching pipeline. A decode error after some layers have parsed
// still emits the parsed layers; a frame with no usable layers is dropped.
func (d *EthernetDecoder) Decode(raw packet.EthernetData) {
	if err := d.parser.DecodeLayers(raw.Payload, &d.decoded); err != nil {
		log.GetLogger().WithError(err).Debug("could not fully decode ethernet frame")
	}

	var srcIP, dstIP netip.Addr
	var srcPort, dstPort uint16

	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeEthernet:
			d.bus.EthernetPipeline.Send(packet.EthernetPacket{
				Timestamp:   raw.Timestamp,
				SrcMAC:      copyMAC(d.eth.SrcMAC),
				DstMAC:      copyMAC(d.eth.DstMAC),
				EtherType:   uint16(d.eth.EthernetType),
				LengthBytes: raw.LengthBytes,
			}, raw.LengthBytes)

		case layers.LayerTypeARP:
			d.bus.ArpPipeline.Send(packet.ARPPacket{
				Timestamp:   raw.Timestamp,
				Operation:   packet.ARPOperation(d.arp.Operation),
				SenderMAC:   copyMAC(d.arp.SourceHwAddress),
				SenderIP:    toAddr(d.arp.SourceProtAddress),
				TargetMAC:   copyMAC(d.arp.DstHwAddress),
				TargetIP:    toAddr(d.arp.DstProtAddress),
				LengthBytes: raw.LengthBytes,
			}, raw.LengthBytes)

		case layers.LayerTypeIPv4:
			srcIP, dstIP = toAddr(d.ip4.SrcIP), toAddr(d.ip4.DstIP)

		case layers.LayerTypeIPv6:
			srcIP, dstIP = toAddr(d.ip6.SrcIP), toAddr(d.ip6.DstIP)

		case layers.LayerTypeTCP:
			d.bus.TcpPipeline.Send(packet.TcpSegment{
				Timestamp: raw.Timestamp,
				SrcIP:     srcIP,
				DstIP:     dstIP,
				SrcPort:   uint16(d.tcp.SrcPort),
				DstPort:   uint16(d.tcp.DstPort),
				Seq:       d.tcp.Seq,
				Ack:       d.tcp.Ack,
				Flags: packet.TCPFlags{
					SYN: d.tcp.SYN, ACK: d.tcp.ACK, FIN: d.tcp.FIN, RST: d.tcp.RST,
				},
				Payload:     append([]byte(nil), d.tcp.Payload...),
				LengthBytes: raw.LengthBytes,
			}, raw.LengthBytes)

		case layers.LayerTypeUDP:
			srcPort, dstPort = uint16(d.udp.SrcPort), uint16(d.udp.DstPort)
			d.bus.UdpPipeline.Send(packet.UDPPacket{
				Timestamp:   raw.Timestamp,
				SrcIP:       srcIP,
				DstIP:       dstIP,
				SrcPort:     srcPort,
				DstPort:     dstPort,
				Payload:     append([]byte(nil), d.udp.Payload...),
				LengthBytes: raw.LengthBytes,
			}, raw.LengthBytes)

		case layers.LayerTypeDNS:
			pkt, ok := d.dnsPacket(raw, srcIP, dstIP, srcPort, dstPort)
			if ok {
				d.bus.DnsPipeline.Send(pkt, raw.LengthBytes)
			}
		}
	}
}

// dnsPacket flattens the decoded DNS layer into a DNSPacket. The client
// is whichever side sent the query, so a response swaps the address pair.
func (d *EthernetDecoder) dnsPacket(raw packet.EthernetData, srcIP, dstIP netip.Addr, srcPort, dstPort uint16) (packet.DNSPacket, bool) {
	if len(d.dns.Questions) == 0 {
		return packet.DNSPacket{}, false
	}
	q := d.dns.Questions[0]

	pkt := packet.DNSPacket{
		Timestamp:     raw.Timestamp,
		TransactionID: d.dns.ID,
		QR:            d.dns.QR,
		QName:         string(q.Name),
		QType:         uint16(q.Type),
		ResponseCode:  packet.DNSResponseCode(d.dns.ResponseCode),
		LengthBytes:   raw.LengthBytes,
	}

	if d.dns.QR {
		pkt.ClientAddr, pkt.ClientPort = dstIP, dstPort
		pkt.ServerAddr, pkt.ServerPort = srcIP, srcPort
		for _, rr := range d.dns.Answers {
			pkt.Answers = append(pkt.Answers, answerString(rr))
		}
	} else {
		pkt.ClientAddr, pkt.ClientPort = srcIP, srcPort
		pkt.ServerAddr, pkt.ServerPort = dstIP, dstPort
	}

	return pkt, true
}

func answerString(rr layers.DNSResourceRecord) string {
	switch rr.Type {
	case layers.DNSTypeA, layers.DNSTypeAAAA:
		return rr.IP.String()
	case layers.DNSTypeCNAME:
		return string(rr.CNAME)
	case layers.DNSTypeNS:
		return string(rr.NS)
	case layers.DNSTypePTR:
		return string(rr.PTR)
	default:
		return string(rr.Name)
	}
}

func copyMAC(b []byte) net.HardwareAddr {
	return append(net.HardwareAddr(nil), b...)
}

func toAddr(ip net.IP) netip.Addr {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	addr, _ := netip.AddrFromSlice(ip)
	return addr
}
