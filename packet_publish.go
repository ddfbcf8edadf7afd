package mqtt

import (
	"bytes"
	"io"
)

// ErrInvalidPacketID marks a zero packet identifier where one is required.
var errZeroPacketID = newMalformed("packet identifier must not be zero")

// PublishPacket is the PUBLISH packet of either protocol version.
type PublishPacket struct {
	// TopicName is the topic the message is published to. No wildcards.
	TopicName string

	// ID is the packet identifier; required (non-zero) when QoS > 0 and
	// forbidden when QoS == 0.
	ID uint16

	// QoS is the delivery guarantee level.
	QoS byte

	// Dup marks a retransmission.
	Dup bool

	// Retain marks the message as retained.
	Retain bool

	// Payload is the application payload.
	Payload []byte

	// Props holds the v5 PUBLISH properties.
	Props Properties
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType {
	return PacketPUBLISH
}

// PacketID returns the packet identifier.
func (p *PublishPacket) PacketID() uint16 {
	return p.ID
}

// SetPacketID sets the packet identifier.
func (p *PublishPacket) SetPacketID(id uint16) {
	p.ID = id
}

// Message converts the packet to the application-facing form.
func (p *PublishPacket) Message() *Message {
	m := &Message{
		Topic:   p.TopicName,
		Payload: p.Payload,
		QoS:     p.QoS,
		Retain:  p.Retain,
		Dup:     p.Dup,
	}
	m.FromProperties(&p.Props)
	return m
}

// NewPublishPacket builds a PUBLISH packet from a message. The packet
// identifier is assigned by the caller for QoS > 0.
func NewPublishPacket(m *Message, v Version) *PublishPacket {
	p := &PublishPacket{
		TopicName: m.Topic,
		QoS:       m.QoS,
		Retain:    m.Retain,
		Payload:   m.Payload,
	}
	if v.HasProperties() {
		p.Props = m.ToProperties()
	}
	return p
}

// Encode writes the packet in the given protocol version.
func (p *PublishPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, p.TopicName); err != nil {
		return 0, err
	}
	if p.QoS > 0 {
		if _, err := encodeUint16(&buf, p.ID); err != nil {
			return 0, err
		}
	}
	if v.HasProperties() {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}
	buf.Write(p.Payload)

	header := FixedHeader{
		PacketType:      PacketPUBLISH,
		RemainingLength: uint32(buf.Len()),
	}
	header.SetQoS(p.QoS)
	header.SetDUP(p.Dup)
	header.SetRetain(p.Retain)

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet body. The payload is everything after the
// variable header up to the remaining length.
func (p *PublishPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPUBLISH {
		return 0, newMalformed("not a PUBLISH packet")
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}

	p.QoS = header.QoS()
	p.Dup = header.DUP()
	p.Retain = header.Retain()

	var total int
	var err error

	p.TopicName, total, err = decodeString(r)
	if err != nil {
		return total, err
	}
	// An empty topic name is allowed on 5.0 when a topic alias stands in.
	if p.TopicName != "" {
		if err := ValidateTopicName(p.TopicName); err != nil {
			return total, newMalformed("invalid topic name")
		}
	} else if !v.HasProperties() {
		return total, newMalformed("empty topic name")
	}

	if p.QoS > 0 {
		var n int
		p.ID, n, err = decodeUint16(r)
		total += n
		if err != nil {
			return total, err
		}
		if p.ID == 0 {
			return total, errZeroPacketID
		}
	}

	if v.HasProperties() {
		n, err := p.Props.Decode(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := p.Props.ValidateFor(PropCtxPUBLISH); err != nil {
			return total, err
		}
	}

	payloadLen := int(header.RemainingLength) - total
	if payloadLen < 0 {
		return total, newMalformed("PUBLISH length shorter than variable header")
	}
	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		n, err := io.ReadFull(r, p.Payload)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *PublishPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.QoS > 2 {
		return newMalformed("PUBLISH QoS 3 is reserved")
	}
	if p.QoS == 0 && p.ID != 0 {
		return newMalformed("packet identifier set on QoS 0 PUBLISH")
	}
	if p.QoS > 0 && p.ID == 0 {
		return errZeroPacketID
	}
	if p.QoS == 0 && p.Dup {
		return newMalformed("DUP set on QoS 0 PUBLISH")
	}
	if p.TopicName == "" && v.HasProperties() && p.Props.Has(PropTopicAlias) {
		// Alias-only PUBLISH: the receiver resolves the name.
	} else if err := ValidateTopicName(p.TopicName); err != nil {
		return err
	}
	if !v.HasProperties() && p.Props.Len() > 0 {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
