package mqtt

import "io"

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct {
	ID         uint16
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *PubackPacket) Type() PacketType {
	return PacketPUBACK
}

// PacketID returns the packet identifier.
func (p *PubackPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubackPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *PubackPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return encodeAck(w, PacketPUBACK, 0x00, &ack, v)
}

// Decode reads the packet body.
func (p *PubackPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPUBACK {
		return 0, newMalformed("not a PUBACK packet")
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, PropCtxPUBACK, v)
	if err != nil {
		return n, err
	}
	p.ID, p.ReasonCode, p.Props = ack.ID, ack.ReasonCode, ack.Props
	return n, nil
}

// Validate checks the packet against the version's rules.
func (p *PubackPacket) Validate(v Version) error {
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return validateAck(PacketPUBACK, &ack, v)
}
