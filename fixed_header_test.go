package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
	}{
		{"connect", FixedHeader{PacketType: PacketCONNECT, RemainingLength: 12}},
		{"publish with flags", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0B, RemainingLength: 300}},
		{"pubrel", FixedHeader{PacketType: PacketPUBREL, Flags: 0x02, RemainingLength: 2}},
		{"large body", FixedHeader{PacketType: PacketPUBLISH, RemainingLength: maxVarint}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.header.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.header.Size(), n)

			var got FixedHeader
			n2, err := got.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, n, n2)
			assert.Equal(t, tt.header, got)
		})
	}
}

func TestFixedHeaderValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		wantErr bool
	}{
		{"connect zero flags", FixedHeader{PacketType: PacketCONNECT}, false},
		{"connect nonzero flags", FixedHeader{PacketType: PacketCONNECT, Flags: 0x01}, true},
		{"pubrel correct flags", FixedHeader{PacketType: PacketPUBREL, Flags: 0x02}, false},
		{"pubrel zero flags", FixedHeader{PacketType: PacketPUBREL}, true},
		{"subscribe correct flags", FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02}, false},
		{"unsubscribe wrong flags", FixedHeader{PacketType: PacketUNSUBSCRIBE, Flags: 0x0F}, true},
		{"publish qos 1", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x02}, false},
		{"publish qos 3 reserved", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x06}, true},
		{"unknown type", FixedHeader{PacketType: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.ValidateFlags()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFixedHeaderPublishFlags(t *testing.T) {
	var h FixedHeader
	h.PacketType = PacketPUBLISH

	h.SetQoS(2)
	h.SetDUP(true)
	h.SetRetain(true)
	assert.Equal(t, byte(2), h.QoS())
	assert.True(t, h.DUP())
	assert.True(t, h.Retain())

	h.SetDUP(false)
	h.SetRetain(false)
	h.SetQoS(1)
	assert.Equal(t, byte(1), h.QoS())
	assert.False(t, h.DUP())
	assert.False(t, h.Retain())
}

func TestPacketTypeValid(t *testing.T) {
	assert.True(t, PacketCONNECT.Valid(MQTTv311))
	assert.True(t, PacketDISCONNECT.Valid(MQTTv311))
	assert.False(t, PacketAUTH.Valid(MQTTv311))
	assert.True(t, PacketAUTH.Valid(MQTTv50))
	assert.False(t, PacketType(0).Valid(MQTTv50))
}

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "CONNECT", PacketCONNECT.String())
	assert.Equal(t, "AUTH", PacketAUTH.String())
	assert.Equal(t, "UNKNOWN", PacketType(0).String())
}
