package mqtt

import "io"

// PubrecPacket is the first acknowledgement of a QoS 2 exchange.
type PubrecPacket struct {
	ID         uint16
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *PubrecPacket) Type() PacketType {
	return PacketPUBREC
}

// PacketID returns the packet identifier.
func (p *PubrecPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *PubrecPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *PubrecPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return encodeAck(w, PacketPUBREC, 0x00, &ack, v)
}

// Decode reads the packet body.
func (p *PubrecPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPUBREC {
		return 0, newMalformed("not a PUBREC packet")
	}
	var ack ackPacket
	n, err := decodeAck(r, header, &ack, PropCtxPUBREC, v)
	if err != nil {
		return n, err
	}
	p.ID, p.ReasonCode, p.Props = ack.ID, ack.ReasonCode, ack.Props
	return n, nil
}

// Validate checks the packet against the version's rules.
func (p *PubrecPacket) Validate(v Version) error {
	ack := ackPacket{ID: p.ID, ReasonCode: p.ReasonCode, Props: p.Props}
	return validateAck(PacketPUBREC, &ack, v)
}
