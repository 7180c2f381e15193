// Package packet defines the immutable value types produced by decoders and
// carried through the message bus to protocol processors. Values
// are shared by reference and never mutated after decode.
package packet

import (
	"net"
	"net/netip"
	"time"
)

// EthernetData is the raw L2 payload as handed off by a capture source,
// before any protocol decoding has happened.
type EthernetData struct {
	Timestamp   time.Time
	Payload     []byte
	LengthBytes int
}

// EthernetPacket is a decoded Ethernet frame header.
type EthernetPacket struct {
	Timestamp   time.Time
	SrcMAC      net.HardwareAddr
	DstMAC      net.HardwareAddr
	EtherType   uint16
	LengthBytes int
}

// ARPOperation distinguishes ARP requests from replies.
type ARPOperation uint16

const (
	ARPRequest ARPOperation = 1
	ARPReply   ARPOperation = 2
)

// ARPPacket is a decoded ARP announcement, carrying enough to upsert the ARP
// table.
type ARPPacket struct {
	Timestamp   time.Time
	Operation   ARPOperation
	SenderMAC   net.HardwareAddr
	SenderIP    netip.Addr
	TargetMAC   net.HardwareAddr
	TargetIP    netip.Addr
	LengthBytes int
}

// UDPPacket is a decoded UDP datagram. Carried through udp_pipeline, which
// carries no processor behavior of its own.
type UDPPacket struct {
	Timestamp   time.Time
	SrcIP       netip.Addr
	DstIP       netip.Addr
	SrcPort     uint16
	DstPort     uint16
	Payload     []byte
	LengthBytes int
}

// DNSResponseCode mirrors the RCODE field of a DNS response.
type DNSResponseCode uint8

const (
	DNSNoError  DNSResponseCode = 0
	DNSFormErr  DNSResponseCode = 1
	DNSServFail DNSResponseCode = 2
	DNSNXDomain DNSResponseCode = 3
)

// DNSPacket is a decoded DNS query or response. QR
// distinguishes the two: false is a query, true is a response.
type DNSPacket struct {
	Timestamp     time.Time
	TransactionID uint16
	QR            bool
	QName         string
	QType         uint16
	ResponseCode  DNSResponseCode
	ClientAddr    netip.Addr
	ClientPort    uint16
	ServerAddr    netip.Addr
	ServerPort    uint16
	Answers       []string
	LengthBytes   int
}

// TCPFlags is the subset of TCP control bits relevant to session tracking.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
}

// TcpSegment is a decoded TCP segment, the unit processed by the TCP table.
type TcpSegment struct {
	Timestamp   time.Time
	SrcIP       netip.Addr
	DstIP       netip.Addr
	SrcPort     uint16
	DstPort     uint16
	Seq         uint32
	Ack         uint32
	Flags       TCPFlags
	Payload     []byte
	LengthBytes int
}

// Dot11RawFrame is a raw 802.11 frame as delivered from the wifi broker,
// before frame-type decoding.
type Dot11RawFrame struct {
	Timestamp   time.Time
	Data        []byte
	RSSI        int
	LengthBytes int
}

// Dot11FrameType enumerates the 802.11 management/data frame subtypes the
// table cares about.
type Dot11FrameType int

const (
	Dot11FrameBeacon Dot11FrameType = iota
	Dot11FrameProbeRequest
	Dot11FrameProbeResponse
	Dot11FrameData
	Dot11FrameOther
)

// Dot11Frame is a decoded 802.11 frame.
type Dot11Frame struct {
	Timestamp   time.Time
	Type        Dot11FrameType
	BSSID       net.HardwareAddr
	ClientMAC   net.HardwareAddr
	SSID        string
	Channel     int
	RSSI        int
	Security    string
	LengthBytes int
}
