package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otus-tap/agent/internal/packet"
)

// beaconFrame hand-assembles a management beacon: 24-byte header, 12-byte
// fixed parameters, SSID and DS-parameter elements, trailing FCS.
func beaconFrame(ssid string, channel byte, capabilities uint16) []byte {
	var frame []byte

	frame = append(frame, 0x80, 0x00) // frame control: mgmt/beacon
	frame = append(frame, 0x00, 0x00) // duration
	frame = append(frame, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)             // addr1: broadcast
	frame = append(frame, 0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01)             // addr2: transmitter
	frame = append(frame, 0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01)             // addr3: BSSID
	frame = append(frame, 0x00, 0x00)                                     // sequence control
	frame = append(frame, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00) // timestamp
	frame = append(frame, 0x64, 0x00)                                     // beacon interval
	frame = append(frame, byte(capabilities), byte(capabilities>>8))      // capability info

	frame = append(frame, 0x00, byte(len(ssid))) // SSID element
	frame = append(frame, []byte(ssid)...)
	frame = append(frame, 0x03, 0x01, channel) // DS parameter set

	frame = append(frame, 0x00, 0x00, 0x00, 0x00) // FCS
	return frame
}

func TestDecodeBeaconFrame(t *testing.T) {
	b := newTestBus()
	d := NewDot11Decoder(b)

	d.Decode(packet.Dot11RawFrame{
		Timestamp:   time.Unix(2000, 0),
		Data:        beaconFrame("corp-wifi", 6, 0x0000),
		RSSI:        -47,
		LengthBytes: 80,
	})

	frame, ok := b.Dot11FramesPipeline.Receive()
	require.True(t, ok)
	assert.Equal(t, packet.Dot11FrameBeacon, frame.Type)
	assert.Equal(t, "aa:bb:cc:00:00:01", frame.BSSID.String())
	assert.Equal(t, "corp-wifi", frame.SSID)
	assert.Equal(t, 6, frame.Channel)
	assert.Equal(t, -47, frame.RSSI)
	assert.Equal(t, "open", frame.Security)
}

func TestDecodeBeaconPrivacyFlagMeansWEP(t *testing.T) {
	b := newTestBus()
	d := NewDot11Decoder(b)

	d.Decode(packet.Dot11RawFrame{
		Timestamp:   time.Unix(2000, 0),
		Data:        beaconFrame("legacy-ap", 11, 0x0010),
		RSSI:        -60,
		LengthBytes: 80,
	})

	frame, ok := b.Dot11FramesPipeline.Receive()
	require.True(t, ok)
	assert.Equal(t, "wep", frame.Security)
	assert.Equal(t, 11, frame.Channel)
}

func TestDecodeTruncatedDot11FrameIsDropped(t *testing.T) {
	b := newTestBus()
	d := NewDot11Decoder(b)

	d.Decode(packet.Dot11RawFrame{Data: []byte{0x80, 0x00}, LengthBytes: 2})

	b.Dot11FramesPipeline.Close()
	_, ok := b.Dot11FramesPipeline.Receive()
	assert.False(t, ok, "nothing should be emitted for a truncated frame")
}
