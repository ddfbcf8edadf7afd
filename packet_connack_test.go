package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnackPacketRoundTrip(t *testing.T) {
	t.Run("v5 success with properties", func(t *testing.T) {
		pkt := &ConnackPacket{SessionPresent: true, ReasonCode: ReasonSuccess}
		pkt.Props.Set(PropAssignedClientIdentifier, "assigned-1")
		pkt.Props.Set(PropReceiveMaximum, uint16(10))

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)

		decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)

		got := decoded.(*ConnackPacket)
		assert.True(t, got.SessionPresent)
		assert.Equal(t, ReasonSuccess, got.ReasonCode)
		assert.Equal(t, "assigned-1", got.Props.GetString(PropAssignedClientIdentifier))
		assert.Equal(t, uint16(10), got.Props.GetUint16(PropReceiveMaximum))
	})

	t.Run("v3 return code on the wire", func(t *testing.T) {
		pkt := &ConnackPacket{ReasonCode: ReasonNotAuthorized}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		require.NoError(t, err)

		// Body is exactly: flags byte, return code byte.
		raw := buf.Bytes()
		assert.Equal(t, byte(0x00), raw[2])
		assert.Equal(t, byte(ConnectRefusedNotAuthorized), raw[3])

		decoded, _, err := ReadPacket(&buf, MQTTv311, 0)
		require.NoError(t, err)
		assert.Equal(t, ReasonNotAuthorized, decoded.(*ConnackPacket).ReasonCode)
	})
}

func TestConnackPacketSessionPresentOnError(t *testing.T) {
	pkt := &ConnackPacket{SessionPresent: true, ReasonCode: ReasonNotAuthorized}
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	assert.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestConnackPacketReservedFlags(t *testing.T) {
	raw := []byte{0x02, byte(ReasonSuccess)}
	header := FixedHeader{PacketType: PacketCONNACK, RemainingLength: 2}
	var pkt ConnackPacket
	_, err := pkt.Decode(bytes.NewReader(raw), header, MQTTv50)
	assert.Error(t, err)
	assert.True(t, IsMalformed(err))
}
