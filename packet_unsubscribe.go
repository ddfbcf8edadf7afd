package mqtt

import (
	"bytes"
	"io"
)

// UnsubscribePacket removes subscriptions by topic filter.
type UnsubscribePacket struct {
	ID           uint16
	TopicFilters []string
	Props        Properties
}

// Type returns the packet type.
func (p *UnsubscribePacket) Type() PacketType {
	return PacketUNSUBSCRIBE
}

// PacketID returns the packet identifier.
func (p *UnsubscribePacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *UnsubscribePacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *UnsubscribePacket) Encode(w io.Writer, v Version) (int, error) {
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
	for _, filter := range p.TopicFilters {
		if _, err := encodeString(&buf, filter); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketUNSUBSCRIBE,
		Flags:           0x02,
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
func (p *UnsubscribePacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketUNSUBSCRIBE {
		return 0, newMalformed("not an UNSUBSCRIBE packet")
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
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
		if err := p.Props.ValidateFor(PropCtxUNSUBSCRIBE); err != nil {
			return total, err
		}
	}

	for total < int(header.RemainingLength) {
		var filter string
		filter, n, err = decodeString(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := ValidateTopicFilter(filter); err != nil {
			return total, newMalformed("invalid topic filter")
		}
		p.TopicFilters = append(p.TopicFilters, filter)
	}

	if len(p.TopicFilters) == 0 {
		return total, newViolation(ReasonProtocolError, "UNSUBSCRIBE with no topic filters")
	}
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *UnsubscribePacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.ID == 0 {
		return errZeroPacketID
	}
	if len(p.TopicFilters) == 0 {
		return newViolation(ReasonProtocolError, "UNSUBSCRIBE with no topic filters")
	}
	for _, filter := range p.TopicFilters {
		if err := ValidateTopicFilter(filter); err != nil {
			return err
		}
	}
	if !v.HasProperties() && p.Props.Len() > 0 {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
