package mqtt

import (
	"bytes"
	"io"
)

// UnsubackPacket acknowledges an UNSUBSCRIBE. v3.1.1 carries only the
// packet identifier; v5.0 adds one reason code per filter.
type UnsubackPacket struct {
	ID          uint16
	ReasonCodes []ReasonCode
	Props       Properties
}

// Type returns the packet type.
func (p *UnsubackPacket) Type() PacketType {
	return PacketUNSUBACK
}

// PacketID returns the packet identifier.
func (p *UnsubackPacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *UnsubackPacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *UnsubackPacket) Encode(w io.Writer, v Version) (int, error) {
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
		for _, code := range p.ReasonCodes {
			buf.WriteByte(byte(code))
		}
	}

	header := FixedHeader{
		PacketType:      PacketUNSUBACK,
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
func (p *UnsubackPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketUNSUBACK {
		return 0, newMalformed("not an UNSUBACK packet")
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

	if !v.HasProperties() {
		if header.RemainingLength != 2 {
			return total, newMalformed("3.1.1 UNSUBACK must be 2 bytes")
		}
		return total, nil
	}

	n, err = p.Props.Decode(r)
	total += n
	if err != nil {
		return total, err
	}
	if err := p.Props.ValidateFor(PropCtxUNSUBACK); err != nil {
		return total, err
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
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *UnsubackPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.ID == 0 {
		return errZeroPacketID
	}
	if !v.HasProperties() && (len(p.ReasonCodes) > 0 || p.Props.Len() > 0) {
		return newMalformed("reason codes are not valid in 3.1.1")
	}
	return nil
}
