package mqtt

import (
	"bytes"
	"io"
)

// SubackPacket acknowledges a SUBSCRIBE with one reason code per filter.
// In v3.1.1 the per-filter byte is a return code: granted QoS 0-2 or 0x80
// for failure, which maps onto the same ReasonCode values.
type SubackPacket struct {
	ID          uint16
	ReasonCodes []ReasonCode
	Props       Properties
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType {
	return PacketSUBACK
}

// PacketID returns the packet identifier.
func (p *SubackPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *SubackPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.ID); err != nil {
		return 0, err
	}
	if v.HasProperties() {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}
	for _, code := range p.ReasonCodes {
		if !v.HasProperties() && code.IsError() {
			// v3.1.1 has a single failure value.
			code = 0x80
		}
		buf.WriteByte(byte(code))
	}

	header := FixedHeader{
		PacketType:      PacketSUBACK,
		RemainingLength: uint32(buf.Len()),
	}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet body.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, newMalformed("not a SUBACK packet")
	}

	var total int
	var n int
	var err error

	p.ID, n, err = decodeUint16(r)
	total += n
	if err != nil {
		return total, err
	}
	if p.ID == 0 {
		return total, errZeroPacketID
	}

	if v.HasProperties() {
		n, err = p.Props.Decode(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := p.Props.ValidateFor(PropCtxSUBACK); err != nil {
			return total, err
		}
	}

	for total < int(header.RemainingLength) {
		var codeBuf [1]byte
		n, err = io.ReadFull(r, codeBuf[:])
		total += n
		if err != nil {
			return total, err
		}
		p.ReasonCodes = append(p.ReasonCodes, ReasonCode(codeBuf[0]))
	}

	if len(p.ReasonCodes) == 0 {
		return total, newViolation(ReasonProtocolError, "SUBACK with no reason codes")
	}
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *SubackPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.ID == 0 {
		return errZeroPacketID
	}
	if len(p.ReasonCodes) == 0 {
		return newViolation(ReasonProtocolError, "SUBACK with no reason codes")
	}
	if !v.HasProperties() && p.Props.Len() > 0 {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
