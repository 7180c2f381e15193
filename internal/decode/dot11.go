package decode

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/otus-tap/agent/internal/bus"
	"github.com/otus-tap/agent/internal/log"
	"github.com/otus-tap/agent/internal/packet"
)

// beaconPrivacyFlag is the Privacy bit of the beacon capability field,
// set by APs running WEP or better when no RSN element narrows it down.
const beaconPrivacyFlag = 0x0010

// Dot11Decoder drains dot11_broker and decodes each raw 802.11 frame
// into a Dot11Frame for the frames pipeline. Management frames carry
// variable-length information elements, so decoding walks the full layer
// list instead of using a cached-layer parser.
type Dot11Decoder struct {
	bus *bus.Bus
}

// NewDot11Decoder constructs a decoder emitting into b's frames pipeline.
func NewDot11Decoder(b *bus.Bus) *Dot11Decoder {
	return &Dot11Decoder{bus: b}
}

// Decode parses one raw 802.11 frame (with trailing FCS) and sends the
// resulting Dot11Frame. Frames that fail header decoding are dropped.
func (d *Dot11Decoder) Decode(raw packet.Dot11RawFrame) {
	parsed := gopacket.NewPacket(raw.Data, layers.LayerTypeDot11, gopacket.NoCopy)

	dot11Layer := parsed.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		log.GetLogger().Debug("could not decode 802.11 frame header")
		return
	}
	dot11 := dot11Layer.(*layers.Dot11)

	frame := packet.Dot11Frame{
		Timestamp:   raw.Timestamp,
		Type:        packet.Dot11FrameOther,
		BSSID:       append(net.HardwareAddr(nil), dot11.Address3...),
		ClientMAC:   append(net.HardwareAddr(nil), dot11.Address2...),
		RSSI:        raw.RSSI,
		LengthBytes: raw.LengthBytes,
	}

	switch {
	case dot11.Type == layers.Dot11TypeMgmtBeacon:
		frame.Type = packet.Dot11FrameBeacon
	case dot11.Type == layers.Dot11TypeMgmtProbeReq:
		frame.Type = packet.Dot11FrameProbeRequest
	case dot11.Type == layers.Dot11TypeMgmtProbeResp:
		frame.Type = packet.Dot11FrameProbeResponse
	case dot11.Type.MainType() == layers.Dot11TypeData:
		frame.Type = packet.Dot11FrameData
	}

	for _, l := range parsed.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			frame.SSID = string(ie.Info)
		case layers.Dot11InformationElementIDDSSet:
			if len(ie.Info) > 0 {
				frame.Channel = int(ie.Info[0])
			}
		case layers.Dot11InformationElementIDRSNInfo:
			frame.Security = "wpa2"
		}
	}

	if frame.Security == "" && frame.Type == packet.Dot11FrameBeacon {
		if beacon, ok := parsed.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon); ok {
			if beacon.Flags&beaconPrivacyFlag != 0 {
				frame.Security = "wep"
			} else {
				frame.Security = "open"
			}
		}
	}

	d.bus.Dot11FramesPipeline.Send(frame, raw.LengthBytes)
}
