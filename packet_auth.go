package mqtt

import (
	"bytes"
	"io"
)

// AuthPacket carries an enhanced authentication exchange. It exists only
// in 5.0; encoding or decoding it on a 3.1.1 connection is an error.
type AuthPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *AuthPacket) Type() PacketType {
	return PacketAUTH
}

// Encode writes the packet in the given protocol version.
func (p *AuthPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	if p.ReasonCode != ReasonSuccess || p.Props.Len() > 0 {
		buf.WriteByte(byte(p.ReasonCode))
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketAUTH,
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
func (p *AuthPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketAUTH {
		return 0, newMalformed("not an AUTH packet")
	}
	if !v.HasProperties() {
		return 0, newViolation(ReasonProtocolError, "AUTH is not valid in 3.1.1")
	}
	p.ReasonCode = ReasonSuccess

	if header.RemainingLength == 0 {
		return 0, nil
	}

	var total int
	var codeBuf [1]byte
	n, err := io.ReadFull(r, codeBuf[:])
	total += n
	if err != nil {
		return total, err
	}
	p.ReasonCode = ReasonCode(codeBuf[0])
	if !p.ReasonCode.ValidForAck(PacketAUTH) {
		return total, newMalformed("invalid AUTH reason code")
	}

	if total < int(header.RemainingLength) {
		n, err = p.Props.Decode(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := p.Props.ValidateFor(PropCtxAUTH); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *AuthPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if !v.HasProperties() {
		return newViolation(ReasonProtocolError, "AUTH is not valid in 3.1.1")
	}
	if !p.ReasonCode.ValidForAck(PacketAUTH) {
		return newMalformed("invalid AUTH reason code")
	}
	return nil
}
