package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(recvMax uint16) (*InFlightTracker, *PacketIDManager) {
	ids := NewPacketIDManager()
	return NewInFlightTracker(ids, recvMax), ids
}

func TestInFlightQoS1Chain(t *testing.T) {
	tracker, ids := newTestTracker(0)

	id, err := ids.Allocate()
	require.NoError(t, err)

	msg := &Message{Topic: "a", QoS: 1, Payload: []byte("x")}
	require.NoError(t, tracker.TrackPublish(id, msg))
	assert.Equal(t, 1, tracker.OutboundCount())

	got, err := tracker.HandlePuback(id)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Equal(t, 0, tracker.OutboundCount())
	assert.False(t, ids.IsUsed(id))

	// A second PUBACK for the same ID finds nothing.
	_, err = tracker.HandlePuback(id)
	assert.ErrorIs(t, err, ErrPacketIDNotFound)
}

func TestInFlightQoS2Chain(t *testing.T) {
	tracker, ids := newTestTracker(0)

	id, err := ids.Allocate()
	require.NoError(t, err)
	require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: 2}))

	require.NoError(t, tracker.HandlePubrec(id))
	// Duplicate PUBREC is tolerated.
	require.NoError(t, tracker.HandlePubrec(id))

	// PUBACK cannot complete a QoS 2 flow.
	_, err = tracker.HandlePuback(id)
	assert.ErrorIs(t, err, ErrPacketIDNotFound)

	require.NoError(t, tracker.HandlePubcomp(id))
	assert.Equal(t, 0, tracker.OutboundCount())
	assert.False(t, ids.IsUsed(id))

	// PUBCOMP out of the blue finds nothing.
	assert.ErrorIs(t, tracker.HandlePubcomp(id), ErrPacketIDNotFound)
}

func TestInFlightQoS2OutOfOrder(t *testing.T) {
	tracker, ids := newTestTracker(0)

	id, _ := ids.Allocate()
	require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: 2}))

	// PUBCOMP before PUBREC is rejected.
	assert.ErrorIs(t, tracker.HandlePubcomp(id), ErrPacketIDNotFound)
}

func TestInFlightTrackQoS0Rejected(t *testing.T) {
	tracker, _ := newTestTracker(0)
	err := tracker.TrackPublish(1, &Message{Topic: "a"})
	assert.Error(t, err)
}

func TestInFlightInboundPublish(t *testing.T) {
	t.Run("qos 0 always delivers", func(t *testing.T) {
		tracker, _ := newTestTracker(0)
		deliver, err := tracker.HandlePublish(&PublishPacket{TopicName: "a"})
		require.NoError(t, err)
		assert.True(t, deliver)
		assert.Equal(t, 0, tracker.InboundCount())
	})

	t.Run("qos 1 occupies the window until puback", func(t *testing.T) {
		tracker, _ := newTestTracker(0)
		deliver, err := tracker.HandlePublish(&PublishPacket{TopicName: "a", ID: 1, QoS: 1})
		require.NoError(t, err)
		assert.True(t, deliver)
		assert.Equal(t, 1, tracker.InboundCount())

		// A retransmission delivers again but holds no second slot.
		deliver, err = tracker.HandlePublish(&PublishPacket{TopicName: "a", ID: 1, QoS: 1, Dup: true})
		require.NoError(t, err)
		assert.True(t, deliver)
		assert.Equal(t, 1, tracker.InboundCount())

		tracker.CompleteInbound(1)
		assert.Equal(t, 0, tracker.InboundCount())
	})

	t.Run("qos 2 duplicate suppressed", func(t *testing.T) {
		tracker, _ := newTestTracker(0)
		pkt := &PublishPacket{TopicName: "a", ID: 1, QoS: 2}

		deliver, err := tracker.HandlePublish(pkt)
		require.NoError(t, err)
		assert.True(t, deliver)
		assert.Equal(t, 1, tracker.InboundCount())

		// The retransmission still wants a PUBREC but not a delivery.
		deliver, err = tracker.HandlePublish(pkt)
		require.NoError(t, err)
		assert.False(t, deliver)

		tracker.HandlePubrel(1)
		assert.Equal(t, 0, tracker.InboundCount())

		// After PUBREL the same ID starts a fresh flow.
		deliver, err = tracker.HandlePublish(pkt)
		require.NoError(t, err)
		assert.True(t, deliver)
	})

	t.Run("qos 1 window exhaustion", func(t *testing.T) {
		tracker, _ := newTestTracker(1)

		deliver, err := tracker.HandlePublish(&PublishPacket{TopicName: "a", ID: 1, QoS: 1})
		require.NoError(t, err)
		assert.True(t, deliver)

		// A second unacknowledged QoS 1 flow breaks the window contract.
		deliver, err = tracker.HandlePublish(&PublishPacket{TopicName: "b", ID: 2, QoS: 1})
		require.Error(t, err)
		assert.False(t, deliver)
		assert.True(t, IsProtocolViolation(err))

		// The PUBACK frees the slot for the next flow.
		tracker.CompleteInbound(1)
		deliver, err = tracker.HandlePublish(&PublishPacket{TopicName: "b", ID: 2, QoS: 1})
		require.NoError(t, err)
		assert.True(t, deliver)
	})

	t.Run("receive maximum window", func(t *testing.T) {
		tracker, _ := newTestTracker(2)

		for id := uint16(1); id <= 2; id++ {
			deliver, err := tracker.HandlePublish(&PublishPacket{TopicName: "a", ID: id, QoS: 2})
			require.NoError(t, err)
			assert.True(t, deliver)
		}

		deliver, err := tracker.HandlePublish(&PublishPacket{TopicName: "a", ID: 3, QoS: 2})
		require.Error(t, err)
		assert.False(t, deliver)
		assert.True(t, IsProtocolViolation(err))

		var violation *ProtocolViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, ReasonReceiveMaxExceeded, violation.Reason)
	})
}

func TestInFlightPubrelAlwaysAnswered(t *testing.T) {
	tracker, _ := newTestTracker(0)

	// No record exists; HandlePubrel still succeeds so the caller can
	// answer a retransmitted PUBREL whose PUBCOMP got lost.
	tracker.HandlePubrel(99)
	assert.Equal(t, 0, tracker.InboundCount())
}

func TestInFlightPendingRetransmit(t *testing.T) {
	tracker, ids := newTestTracker(0)

	// Three flows in mixed states, tracked out of ID order.
	for _, id := range []uint16{3, 1, 2} {
		ids.Claim(id)
		qos := byte(1)
		if id != 1 {
			qos = 2
		}
		require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: qos, Payload: []byte("x")}))
	}
	require.NoError(t, tracker.HandlePubrec(3))

	packets := tracker.PendingRetransmit(MQTTv50)
	require.Len(t, packets, 3)

	pub1 := packets[0].(*PublishPacket)
	assert.Equal(t, uint16(1), pub1.ID)
	assert.True(t, pub1.Dup)

	pub2 := packets[1].(*PublishPacket)
	assert.Equal(t, uint16(2), pub2.ID)
	assert.True(t, pub2.Dup)

	rel := packets[2].(*PubrelPacket)
	assert.Equal(t, uint16(3), rel.ID)
}

func TestInFlightStaleRetransmit(t *testing.T) {
	tracker, ids := newTestTracker(0)

	id, _ := ids.Allocate()
	require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: 1, Payload: []byte("x")}))

	// Nothing is old enough yet.
	assert.Empty(t, tracker.StaleRetransmit(MQTTv50, time.Hour))

	// With a zero threshold everything qualifies.
	packets := tracker.StaleRetransmit(MQTTv50, 0)
	require.Len(t, packets, 1)
	pub := packets[0].(*PublishPacket)
	assert.Equal(t, id, pub.ID)
	assert.True(t, pub.Dup)

	outbound, _ := tracker.Snapshot()
	require.Len(t, outbound, 1)
	assert.Equal(t, 1, outbound[0].Retries)
}

func TestInFlightSnapshotRestore(t *testing.T) {
	tracker, ids := newTestTracker(0)

	for id := uint16(1); id <= 2; id++ {
		ids.Claim(id)
		require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: 1, Payload: []byte("x")}))
	}
	tracker.HandlePublish(&PublishPacket{TopicName: "b", ID: 7, QoS: 2})

	outbound, inbound := tracker.Snapshot()
	require.Len(t, outbound, 2)
	require.Len(t, inbound, 1)
	assert.Equal(t, uint16(1), outbound[0].ID)
	assert.Equal(t, uint16(7), inbound[0].ID)

	// Restore into a fresh tracker claims the outbound IDs.
	fresh, freshIDs := newTestTracker(0)
	fresh.Restore(outbound, inbound)
	assert.Equal(t, 2, fresh.OutboundCount())
	assert.Equal(t, 1, fresh.InboundCount())
	assert.True(t, freshIDs.IsUsed(1))
	assert.True(t, freshIDs.IsUsed(2))

	id, err := freshIDs.Allocate()
	require.NoError(t, err)
	assert.Equal(t, uint16(3), id)
}

func TestInFlightClear(t *testing.T) {
	tracker, ids := newTestTracker(0)

	id, _ := ids.Allocate()
	require.NoError(t, tracker.TrackPublish(id, &Message{Topic: "a", QoS: 1}))
	tracker.HandlePublish(&PublishPacket{TopicName: "b", ID: 9, QoS: 2})

	tracker.Clear()
	assert.Equal(t, 0, tracker.OutboundCount())
	assert.Equal(t, 0, tracker.InboundCount())
	assert.False(t, ids.IsUsed(id))
}
