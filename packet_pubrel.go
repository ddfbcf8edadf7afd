package mqtt

import "io"

// PubrelPacket is the second acknowledgement of a QoS 2 exchange. Its fixed
// header carries the reserved flags value 0x02.
type PubrelPacket struct {
	ID         uint16
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *PubrelPacket) Type() PacketType {
	return PacketPUBREL
}

// PacketID returns the packet identifier.
func (p *PubrelPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubrelPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *PubrelPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return encodeAck(w, PacketPUBREL, 0x02, &ack, v)
}

// Decode reads the packet body.
func (p *PubrelPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPUBREL {
		return 0, newMalformed("not a PUBREL packet")
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, PropCtxPUBREL, v)
	if err != nil {
		return n, err
	}
	p.ID, p.ReasonCode, p.Props = ack.ID, ack.ReasonCode, ack.Props
	return n, nil
}

// Validate checks the packet against the version's rules.
func (p *PubrelPacket) Validate(v Version) error {
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return validateAck(PacketPUBREL, &ack, v)
}
