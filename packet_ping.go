package mqtt

import "io"

// PingreqPacket is the keep-alive probe. It has no body in either version.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType {
	return PacketPINGREQ
}

// Encode writes the packet in the given protocol version.
func (p *PingreqPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	header := FixedHeader{PacketType: PacketPINGREQ}
	return header.Encode(w)
}

// Decode reads the packet body.
func (p *PingreqPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPINGREQ {
		return 0, newMalformed("not a PINGREQ packet")
	}
	if header.RemainingLength != 0 {
		return 0, newMalformed("PINGREQ must have an empty body")
	}
	return 0, nil
}

// Validate checks the packet against the version's rules.
func (p *PingreqPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	return nil
}

// PingrespPacket answers a PINGREQ. It has no body in either version.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType {
	return PacketPINGRESP
}

// Encode writes the packet in the given protocol version.
func (p *PingrespPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}
	header := FixedHeader{PacketType: PacketPINGRESP}
	return header.Encode(w)
}

// Decode reads the packet body.
func (p *PingrespPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketPINGRESP {
		return 0, newMalformed("not a PINGRESP packet")
	}
	if header.RemainingLength != 0 {
		return 0, newMalformed("PINGRESP must have an empty body")
	}
	return 0, nil
}

// Validate checks the packet against the version's rules.
func (p *PingrespPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	return nil
}
