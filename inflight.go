package mqtt

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrPacketIDNotFound = errors.New("mqtt: packet ID not found")

// FlowState is the position of an in-flight message within its QoS
// acknowledgement chain.
type FlowState int

const (
	// Outbound states.
	FlowAwaitingPuback  FlowState = iota // QoS 1, PUBLISH sent
	FlowAwaitingPubrec                   // QoS 2, PUBLISH sent
	FlowAwaitingPubcomp                  // QoS 2, PUBREC received, PUBREL sent

	// Inbound state.
	FlowAwaitingPubrel // QoS 2, PUBLISH received, PUBREC sent
)

func (s FlowState) String() string {
	switch s {
	case FlowAwaitingPuback:
		return "awaiting-puback"
	case FlowAwaitingPubrec:
		return "awaiting-pubrec"
	case FlowAwaitingPubcomp:
		return "awaiting-pubcomp"
	case FlowAwaitingPubrel:
		return "awaiting-pubrel"
	default:
		return "unknown"
	}
}

// InFlightRecord is one unfinished QoS 1 or QoS 2 flow. The fields are
// exported so session stores can persist and restore them.
type InFlightRecord struct {
	ID      uint16
	Message *Message
	QoS     byte
	State   FlowState
	SentAt  time.Time
	Retries int
}

// Retransmit builds the packet that resumes this flow: the original
// PUBLISH with the DUP flag set, or a bare PUBREL once the flow has
// advanced past PUBREC. The packet identifier is preserved.
func (r *InFlightRecord) Retransmit(v Version) Packet {
	switch r.State {
	case FlowAwaitingPuback, FlowAwaitingPubrec:
		msg := r.Message.Clone()
		msg.Dup = true
		pkt := NewPublishPacket(msg, v)
		pkt.ID = r.ID
		return pkt
	case FlowAwaitingPubcomp:
		return &PubrelPacket{ID: r.ID}
	default:
		return nil
	}
}

// InFlightTracker holds every unfinished QoS flow on one connection, in
// both directions. Outbound flows hold a packet ID from the shared
// allocator until the chain completes; inbound QoS > 0 flows count
// against the local receive-maximum window until acknowledged, and the
// QoS 2 records also gate duplicate delivery.
type InFlightTracker struct {
	mu       sync.Mutex
	outbound map[uint16]*InFlightRecord
	inbound  map[uint16]*InFlightRecord

	ids *PacketIDManager

	// recvMax bounds concurrent inbound QoS > 0 flows. A peer exceeding
	// it has broken the window contract.
	recvMax uint16
}

// NewInFlightTracker creates a tracker. recvMax of 0 means the protocol
// default of 65535. The packet ID manager is shared with the send path so
// released IDs become allocatable again.
func NewInFlightTracker(ids *PacketIDManager, recvMax uint16) *InFlightTracker {
	if recvMax == 0 {
		recvMax = 65535
	}
	return &InFlightTracker{
		outbound: make(map[uint16]*InFlightRecord),
		inbound:  make(map[uint16]*InFlightRecord),
		ids:      ids,
		recvMax:  recvMax,
	}
}

// TrackPublish records an outbound QoS 1 or 2 PUBLISH. The caller has
// already allocated id.
func (t *InFlightTracker) TrackPublish(id uint16, msg *Message) error {
	if msg.QoS == 0 {
		return newMalformed("QoS 0 messages are not tracked")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state := FlowAwaitingPuback
	if msg.QoS == 2 {
		state = FlowAwaitingPubrec
	}
	t.outbound[id] = &InFlightRecord{
		ID:      id,
		Message: msg,
		QoS:     msg.QoS,
		State:   state,
		SentAt:  time.Now(),
	}
	return nil
}

// HandlePuback completes a QoS 1 flow and releases its packet ID. The
// returned message is the one originally published.
func (t *InFlightTracker) HandlePuback(id uint16) (*Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.outbound[id]
	if !ok || rec.State != FlowAwaitingPuback {
		return nil, ErrPacketIDNotFound
	}
	delete(t.outbound, id)
	t.ids.Release(id)
	return rec.Message, nil
}

// HandlePubrec advances a QoS 2 flow to awaiting PUBCOMP. The caller
// sends PUBREL next. The message payload is dropped here: once the
// receiver holds the message, only the packet ID matters.
func (t *InFlightTracker) HandlePubrec(id uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.outbound[id]
	if !ok {
		return ErrPacketIDNotFound
	}
	if rec.State == FlowAwaitingPubcomp {
		// Duplicate PUBREC; the PUBREL resend is the caller's business.
		return nil
	}
	if rec.State != FlowAwaitingPubrec {
		return ErrPacketIDNotFound
	}
	rec.State = FlowAwaitingPubcomp
	rec.Message = nil
	rec.SentAt = time.Now()
	return nil
}

// HandlePubcomp completes a QoS 2 flow and releases its packet ID.
func (t *InFlightTracker) HandlePubcomp(id uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.outbound[id]
	if !ok || rec.State != FlowAwaitingPubcomp {
		return ErrPacketIDNotFound
	}
	delete(t.outbound, id)
	t.ids.Release(id)
	return nil
}

// HandlePublish records an inbound PUBLISH and reports whether the
// message should be delivered to the application. QoS 0 always
// delivers and holds no state. QoS 1 and 2 occupy a window slot until
// acknowledged; a packet ID with a pending record is a retransmission,
// delivered again for QoS 1 (at least once) but never for QoS 2. A
// peer opening more QoS > 0 flows than the receive-maximum window
// allows is a protocol violation.
func (t *InFlightTracker) HandlePublish(p *PublishPacket) (deliver bool, err error) {
	if p.QoS == 0 {
		return true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.inbound[p.ID]; ok {
		return p.QoS == 1, nil
	}

	if len(t.inbound) >= int(t.recvMax) {
		return false, newViolation(ReasonReceiveMaxExceeded, "receive maximum window exceeded")
	}

	state := FlowAwaitingPubrel
	if p.QoS == 1 {
		state = FlowAwaitingPuback
	}
	t.inbound[p.ID] = &InFlightRecord{
		ID:     p.ID,
		QoS:    p.QoS,
		State:  state,
		SentAt: time.Now(),
	}
	return true, nil
}

// CompleteInbound releases the window slot an inbound QoS 1 flow held,
// once its PUBACK is on the wire.
func (t *InFlightTracker) CompleteInbound(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inbound, id)
}

// HandlePubrel closes an inbound QoS 2 flow. The caller sends PUBCOMP
// whether or not the record still existed, so a retransmitted PUBREL
// after a lost PUBCOMP still gets its answer.
func (t *InFlightTracker) HandlePubrel(id uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inbound, id)
}

// PendingRetransmit returns the packets to resend when a session resumes:
// unacknowledged PUBLISHes with DUP set and PUBRELs for flows past
// PUBREC, ordered by packet ID so retransmission order is deterministic.
func (t *InFlightTracker) PendingRetransmit(v Version) []Packet {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.outbound))
	for id := range t.outbound {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	packets := make([]Packet, 0, len(ids))
	for _, id := range ids {
		if pkt := t.outbound[uint16(id)].Retransmit(v); pkt != nil {
			packets = append(packets, pkt)
		}
	}
	return packets
}

// StaleRetransmit returns retransmission packets for outbound flows that
// have waited longer than olderThan for their acknowledgement, bumping
// their retry counters. The cadence is the caller's business.
func (t *InFlightTracker) StaleRetransmit(v Version, olderThan time.Duration) []Packet {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	ids := make([]int, 0, len(t.outbound))
	for id, rec := range t.outbound {
		if rec.SentAt.Before(cutoff) {
			ids = append(ids, int(id))
		}
	}
	sort.Ints(ids)

	packets := make([]Packet, 0, len(ids))
	for _, id := range ids {
		rec := t.outbound[uint16(id)]
		if pkt := rec.Retransmit(v); pkt != nil {
			rec.SentAt = time.Now()
			rec.Retries++
			packets = append(packets, pkt)
		}
	}
	return packets
}

// OutboundCount returns the number of unfinished outbound flows.
func (t *InFlightTracker) OutboundCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outbound)
}

// InboundCount returns the number of unfinished inbound flows.
func (t *InFlightTracker) InboundCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inbound)
}

// Snapshot copies every record for persistence, outbound then inbound.
func (t *InFlightTracker) Snapshot() (outbound, inbound []InFlightRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	outbound = make([]InFlightRecord, 0, len(t.outbound))
	for _, rec := range t.outbound {
		outbound = append(outbound, *rec)
	}
	inbound = make([]InFlightRecord, 0, len(t.inbound))
	for _, rec := range t.inbound {
		inbound = append(inbound, *rec)
	}
	sort.Slice(outbound, func(i, j int) bool { return outbound[i].ID < outbound[j].ID })
	sort.Slice(inbound, func(i, j int) bool { return inbound[i].ID < inbound[j].ID })
	return outbound, inbound
}

// Restore loads records saved by Snapshot, claiming their packet IDs from
// the allocator so new flows cannot collide with resumed ones.
func (t *InFlightTracker) Restore(outbound, inbound []InFlightRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range outbound {
		rec := outbound[i]
		t.outbound[rec.ID] = &rec
		t.ids.Claim(rec.ID)
	}
	for i := range inbound {
		rec := inbound[i]
		t.inbound[rec.ID] = &rec
	}
}

// Clear drops every record and releases outbound packet IDs, for a clean
// session start.
func (t *InFlightTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.outbound {
		t.ids.Release(id)
	}
	t.outbound = make(map[uint16]*InFlightRecord)
	t.inbound = make(map[uint16]*InFlightRecord)
}
