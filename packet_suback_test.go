package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubackPacketRoundTrip(t *testing.T) {
	t.Run("v5 mixed codes", func(t *testing.T) {
		pkt := &SubackPacket{
			ID:          20,
			ReasonCodes: []ReasonCode{ReasonSuccess, ReasonGrantedQoS2, ReasonNotAuthorized},
		}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)

		decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)

		got := decoded.(*SubackPacket)
		assert.Equal(t, uint16(20), got.ID)
		assert.Equal(t, pkt.ReasonCodes, got.ReasonCodes)
	})

	t.Run("v3 granted QoS", func(t *testing.T) {
		pkt := &SubackPacket{ID: 21, ReasonCodes: []ReasonCode{ReasonGrantedQoS1}}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		require.NoError(t, err)

		decoded, _, err := ReadPacket(&buf, MQTTv311, 0)
		require.NoError(t, err)
		assert.Equal(t, []ReasonCode{ReasonGrantedQoS1}, decoded.(*SubackPacket).ReasonCodes)
	})
}

func TestSubackPacketV3FailureCode(t *testing.T) {
	// Any v5-style error collapses to the single 3.1.1 failure value.
	pkt := &SubackPacket{ID: 22, ReasonCodes: []ReasonCode{ReasonQuotaExceeded}}

	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv311)
	require.NoError(t, err)

	raw := buf.Bytes()
	assert.Equal(t, byte(0x80), raw[len(raw)-1])
}

func TestSubackPacketNoCodes(t *testing.T) {
	pkt := &SubackPacket{ID: 1}
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	assert.Error(t, err)
	assert.True(t, IsProtocolViolation(err))

	raw := []byte{0x00, 0x01, 0x00}
	header := FixedHeader{PacketType: PacketSUBACK, RemainingLength: 3}
	var decoded SubackPacket
	_, err = decoded.Decode(bytes.NewReader(raw), header, MQTTv50)
	assert.Error(t, err)
}

func TestUnsubackPacketRoundTrip(t *testing.T) {
	t.Run("v5 reason codes", func(t *testing.T) {
		pkt := &UnsubackPacket{
			ID:          30,
			ReasonCodes: []ReasonCode{ReasonSuccess, ReasonNoSubscriptionExisted},
		}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)

		decoded, _, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)

		got := decoded.(*UnsubackPacket)
		assert.Equal(t, uint16(30), got.ID)
		assert.Equal(t, pkt.ReasonCodes, got.ReasonCodes)
	})

	t.Run("v3 identifier only", func(t *testing.T) {
		pkt := &UnsubackPacket{ID: 31}

		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		require.NoError(t, err)
		assert.Equal(t, 4, buf.Len())

		decoded, _, err := ReadPacket(&buf, MQTTv311, 0)
		require.NoError(t, err)
		assert.Equal(t, uint16(31), decoded.(*UnsubackPacket).ID)
	})
}

func TestUnsubackPacketV3Rules(t *testing.T) {
	t.Run("reason codes rejected on encode", func(t *testing.T) {
		pkt := &UnsubackPacket{ID: 1, ReasonCodes: []ReasonCode{ReasonSuccess}}
		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv311)
		assert.Error(t, err)
	})

	t.Run("oversized body rejected on decode", func(t *testing.T) {
		raw := []byte{0x00, 0x01, 0x00}
		header := FixedHeader{PacketType: PacketUNSUBACK, RemainingLength: 3}
		var pkt UnsubackPacket
		_, err := pkt.Decode(bytes.NewReader(raw), header, MQTTv311)
		assert.Error(t, err)
		assert.True(t, IsMalformed(err))
	})
}
