package mqtt

import "io"

// PubcompPacket is the final acknowledgement of a QoS 2 exchange.
type PubcompPacket struct {
	ID         uint16
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *PubcompPacket) Type() PacketType {
	return PacketPUBCOMP
}

// PacketID returns the packet identifier.
func (p *PubcompPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubcompPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *PubcompPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return encodeAck(w, PacketPUBCOMP, 0x00, &ack, v)
}

// Decode reads the packet body.
func (p *PubcompPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPUBCOMP {
		return 0, newMalformed("not a PUBCOMP packet")
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, PropCtxPUBCOMP, v)
	if err != nil {
		return n, err
	}
	p.ID, p.ReasonCode, p.Props = ack.ID, ack.ReasonCode, ack.Props
	return n, nil
}

// Validate checks the packet against the version's rules.
func (p *PubcompPacket) Validate(v Version) error {
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return validateAck(PacketPUBCOMP, &ack, v)
}
