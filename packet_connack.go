package mqtt

import (
	"bytes"
	"io"
)

// ConnackPacket is the CONNACK packet. In v3.1.1 the outcome byte is a
// ConnectReturnCode; in v5.0 it is a ReasonCode with optional properties.
// The struct stores the v5 form and converts on the wire.
type ConnackPacket struct {
	// SessionPresent is true when the server resumed prior session state
	// for this client identifier.
	SessionPresent bool

	// ReasonCode is the connection outcome.
	ReasonCode ReasonCode

	// Props holds the v5 CONNACK properties.
	Props Properties
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// Encode writes the packet in the given protocol version.
func (p *ConnackPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	var flags byte
	if p.SessionPresent {
		flags = 0x01
	}
	buf.WriteByte(flags)

	if v.HasProperties() {
		buf.WriteByte(byte(p.ReasonCode))
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	} else {
		buf.WriteByte(byte(p.ReasonCode.V3ReturnCode()))
	}

	header := FixedHeader{
		PacketType:      PacketCONNACK,
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
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, newMalformed("not a CONNACK packet")
	}

	var buf [2]byte
	total, err := io.ReadFull(r, buf[:])
	if err != nil {
		return total, err
	}

	if buf[0]&0xFE != 0 {
		return total, newMalformed("CONNACK reserved flags set")
	}
	p.SessionPresent = buf[0]&0x01 != 0

	if v.HasProperties() {
		p.ReasonCode = ReasonCode(buf[1])
		if header.RemainingLength > 2 {
			n, err := p.Props.Decode(r)
			total += n
			if err != nil {
				return total, err
			}
			if err := p.Props.ValidateFor(PropCtxCONNACK); err != nil {
				return total, err
			}
		}
	} else {
		p.ReasonCode = ConnectReturnCode(buf[1]).ReasonCodeValue()
	}

	// The session-present flag must be zero on a refused connection.
	if p.ReasonCode.IsError() && p.SessionPresent {
		return total, newMalformed("session present on refused CONNACK")
	}

	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *ConnackPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.ReasonCode.IsError() && p.SessionPresent {
		return newMalformed("session present on refused CONNACK")
	}
	if !v.HasProperties() && p.Props.Len() > 0 {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
