package mqtt

import (
	"bytes"
	"io"
)

// DisconnectPacket ends the MQTT session. In 3.1.1 it is an empty packet
// the client sends before closing; 5.0 allows either side to send it with
// a reason code and properties.
type DisconnectPacket struct {
	ReasonCode ReasonCode
	Props      Properties
}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType {
	return PacketDISCONNECT
}

// Encode writes the packet in the given protocol version.
func (p *DisconnectPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	if !v.HasProperties() {
		header := FixedHeader{PacketType: PacketDISCONNECT}
		return header.Encode(w)
	}

	var buf bytes.Buffer
	if p.ReasonCode != ReasonSuccess || p.Props.Len() > 0 {
		buf.WriteByte(byte(p.ReasonCode))
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketDISCONNECT,
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
func (p *DisconnectPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketDISCONNECT {
		return 0, newMalformed("not a DISCONNECT packet")
	}
	p.ReasonCode = ReasonSuccess

	if !v.HasProperties() {
		if header.RemainingLength != 0 {
			return 0, newMalformed("3.1.1 DISCONNECT must have an empty body")
		}
		return 0, nil
	}

	// A zero-length v5 DISCONNECT means normal disconnection.
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

	if total < int(header.RemainingLength) {
		n, err = p.Props.Decode(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := p.Props.ValidateFor(PropCtxDISCONNECT); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *DisconnectPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if !v.HasProperties() {
		if p.ReasonCode != ReasonSuccess {
			return newMalformed("reason codes are not valid in 3.1.1")
		}
		if p.Props.Len() > 0 {
			return newMalformed("properties are not valid in 3.1.1")
		}
	}
	return nil
}
