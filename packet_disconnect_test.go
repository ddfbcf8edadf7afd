package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectPacketRoundTrip(t *testing.T) {
	t.Run("v5 with reason and properties", func(t *testing.T) {
		pkt := &DisconnectPacket{ReasonCode: ReasonServerShuttingDown}
		pkt.Props.Set(PropReasonString, "maintenance window")

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)

		decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)

		got := decoded.(*DisconnectPacket)
		assert.Equal(t, ReasonServerShuttingDown, got.ReasonCode)
		assert.Equal(t, "maintenance window", got.Props.GetString(PropReasonString))
	})

	t.Run("v5 normal disconnect has empty body", func(t *testing.T) {
		pkt := &DisconnectPacket{ReasonCode: ReasonSuccess}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)
		assert.Equal(t, 2, buf.Len())

		decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)
		assert.Equal(t, ReasonSuccess, decoded.(*DisconnectPacket).ReasonCode)
	})

	t.Run("v3 is always empty", func(t *testing.T) {
		pkt := &DisconnectPacket{}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		require.NoError(t, err)
		assert.Equal(t, 2, buf.Len())
	})
}

func TestDisconnectPacketV3Rules(t *testing.T) {
	t.Run("reason code rejected", func(t *testing.T) {
		pkt := &DisconnectPacket{ReasonCode: ReasonServerShuttingDown}
		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		assert.Error(t, err)
	})

	t.Run("non-empty body rejected", func(t *testing.T) {
		raw := []byte{byte(ReasonSuccess)}
		header := FixedHeader{PacketType: PacketDISCONNECT, RemainingLength: 1}
		var pkt DisconnectPacket
		_, err := pkt.Decode(bytes.NewReader(raw), header, MQTTv311)
		assert.Error(t, err)
		assert.True(t, IsMalformed(err))
	})
}

func TestAuthPacketRoundTrip(t *testing.T) {
	pkt := &AuthPacket{ReasonCode: ReasonContinueAuth}
	pkt.Props.Set(PropAuthenticationMethod, "SCRAM-SHA-256")
	pkt.Props.Set(PropAuthenticationData, []byte("challenge"))

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	require.NoError(t, err)

	decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
	require.NoError(t, err)

	got := decoded.(*AuthPacket)
	assert.Equal(t, ReasonContinueAuth, got.ReasonCode)
	assert.Equal(t, "SCRAM-SHA-256", got.Props.GetString(PropAuthenticationMethod))
	assert.Equal(t, []byte("challenge"), got.Props.GetBinary(PropAuthenticationData))
}

func TestAuthPacketEmptyBody(t *testing.T) {
	pkt := &AuthPacket{ReasonCode: ReasonSuccess}

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Len())

	decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
	require.NoError(t, err)
	assert.Equal(t, ReasonSuccess, decoded.(*AuthPacket).ReasonCode)
}

func TestAuthPacketNotValidOn311(t *testing.T) {
	pkt := &AuthPacket{ReasonCode: ReasonReAuth}
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv311)
	assert.Error(t, err)
	assert.True(t, IsProtocolViolation(err))
}

func TestAuthPacketInvalidReason(t *testing.T) {
	pkt := &AuthPacket{ReasonCode: ReasonQuotaExceeded}
	assert.Error(t, pkt.Validate(MQTTv50))

	raw := []byte{byte(ReasonQuotaExceeded)}
	header := FixedHeader{PacketType: PacketAUTH, RemainingLength: 1}
	var decoded AuthPacket
	_, err := decoded.Decode(bytes.NewReader(raw), header, MQTTv50)
	assert.Error(t, err)
	assert.True(t, IsMalformed(err))
}
