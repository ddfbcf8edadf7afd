package mqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSplitAcrossPushes(t *testing.T) {
	pkt := &PublishPacket{TopicName: "a/b", ID: 5, QoS: 1, Payload: []byte("payload")}
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	require.NoError(t, err)

	raw := buf.Bytes()
	d := NewDecoder(MQTTv50, 0)

	// Feed one byte at a time; the packet only appears when complete.
	for i, b := range raw {
		d.Push([]byte{b})
		got, err := d.Next()
		if i < len(raw)-1 {
			require.ErrorIs(t, err, ErrNeedMoreData)
			require.Nil(t, got)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, "a/b", got.(*PublishPacket).TopicName)
	}
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoderMultiplePacketsPerPush(t *testing.T) {
	var buf bytes.Buffer
	for i := uint16(1); i <= 3; i++ {
		pkt := &PubackPacket{ID: i}
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)
	}

	d := NewDecoder(MQTTv50, 0)
	d.Push(buf.Bytes())

	for i := uint16(1); i <= 3; i++ {
		got, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, i, got.(*PubackPacket).ID)
	}

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrNeedMoreData)
}

func TestDecoderAdoptsConnectVersion(t *testing.T) {
	for _, v := range []Version{MQTTv311, MQTTv50} {
		t.Run(v.String(), func(t *testing.T) {
			connect := &ConnectPacket{ClientID: "c1", CleanStart: true}
			var buf bytes.Buffer
			_, err := connect.Encode(&buf, v)
			require.NoError(t, err)

			// The decoder starts on the other version; the CONNECT wins.
			other := MQTTv50
			if v == MQTTv50 {
				other = MQTTv311
			}
			d := NewDecoder(other, 0)
			d.Push(buf.Bytes())

			got, err := d.Next()
			require.NoError(t, err)
			assert.Equal(t, "c1", got.(*ConnectPacket).ClientID)
			assert.Equal(t, v, d.Version())
		})
	}
}

func TestDecoderFatalErrorSticks(t *testing.T) {
	d := NewDecoder(MQTTv50, 0)

	// PUBLISH with reserved QoS 3 flags.
	d.Push([]byte{byte(PacketPUBLISH)<<4 | 0x06, 0x00})

	_, err := d.Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNeedMoreData)

	// A well-formed packet pushed afterwards does not recover the stream.
	pkt := &PubackPacket{ID: 1}
	var buf bytes.Buffer
	pkt.Encode(&buf, MQTTv50)
	d.Push(buf.Bytes())

	_, err2 := d.Next()
	assert.Equal(t, err, err2)
}

func TestDecoderPacketTooLarge(t *testing.T) {
	pkt := &PublishPacket{TopicName: "t", Payload: bytes.Repeat([]byte("x"), 128)}
	var buf bytes.Buffer
	_, err := pkt.Encode(&buf, MQTTv50)
	require.NoError(t, err)

	d := NewDecoder(MQTTv50, 64)
	d.Push(buf.Bytes())

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestDecoderOverlongRemainingLength(t *testing.T) {
	d := NewDecoder(MQTTv50, 0)

	// Four length bytes all carrying continuation bits can never form a
	// valid remaining length; no further byte could repair the stream.
	d.Push([]byte{byte(PacketPUBLISH) << 4, 0x80, 0x80, 0x80, 0x80})

	_, err := d.Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNeedMoreData)
	assert.True(t, IsMalformed(err))
}

func TestDecoderAuthOn311IsUnknown(t *testing.T) {
	d := NewDecoder(MQTTv311, 0)
	d.Push([]byte{byte(PacketAUTH) << 4, 0x00})

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrUnknownPacketType)
}

func TestReadWritePacket(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		pkt := &PublishPacket{TopicName: "a", ID: 2, QoS: 1, Payload: []byte("x")}

		var buf bytes.Buffer
		n, err := WritePacket(&buf, pkt, MQTTv50, 0)
		require.NoError(t, err)
		assert.Equal(t, buf.Len(), n)

		got, rn, err := ReadPacket(&buf, MQTTv50, 0)
		require.NoError(t, err)
		assert.Equal(t, n, rn)
		assert.Equal(t, "a", got.(*PublishPacket).TopicName)
	})

	t.Run("write respects max size", func(t *testing.T) {
		pkt := &PublishPacket{TopicName: "t", Payload: bytes.Repeat([]byte("x"), 128)}
		var buf bytes.Buffer
		_, err := WritePacket(&buf, pkt, MQTTv50, 16)
		assert.ErrorIs(t, err, ErrPacketTooLarge)
		assert.Equal(t, 0, buf.Len())
	})

	t.Run("read respects max size", func(t *testing.T) {
		pkt := &PublishPacket{TopicName: "t", Payload: bytes.Repeat([]byte("x"), 128)}
		var buf bytes.Buffer
		_, err := pkt.Encode(&buf, MQTTv50)
		require.NoError(t, err)

		_, _, err = ReadPacket(&buf, MQTTv50, 16)
		assert.ErrorIs(t, err, ErrPacketTooLarge)
	})
}

func FuzzDecoderNext(f *testing.F) {
	connect := &ConnectPacket{ClientID: "fuzz", CleanStart: true}
	var buf bytes.Buffer
	connect.Encode(&buf, MQTTv50)
	f.Add(buf.Bytes())
	f.Add([]byte{byte(PacketPINGREQ) << 4, 0x00})
	f.Add([]byte{0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewDecoder(MQTTv50, 1<<20)
		d.Push(data)
		for {
			pkt, err := d.Next()
			if err != nil {
				return
			}
			if pkt == nil {
				t.Fatal("nil packet without error")
			}
		}
	})
}

func BenchmarkDecoderNext(b *testing.B) {
	pkt := &PublishPacket{TopicName: "bench/topic", ID: 1, QoS: 1, Payload: bytes.Repeat([]byte("x"), 128)}
	var buf bytes.Buffer
	pkt.Encode(&buf, MQTTv50)
	raw := buf.Bytes()

	d := NewDecoder(MQTTv50, 0)

	b.ReportAllocs()
	for b.Loop() {
		d.Push(raw)
		if _, err := d.Next(); err != nil {
			b.Fatal(err)
		}
	}
}
