package mqtt

import (
	"bytes"
	"io"
)

// Subscription is one topic filter entry in a SUBSCRIBE packet. The v5
// options beyond QoS are encoded only on v5.0.
type Subscription struct {
	// TopicFilter is the filter, possibly with wildcards.
	TopicFilter string

	// QoS is the maximum QoS the subscriber accepts.
	QoS byte

	// NoLocal suppresses delivery of messages published on this connection
	// (v5 only).
	NoLocal bool

	// RetainAsPublished keeps the retain flag as published (v5 only).
	RetainAsPublished bool

	// RetainHandling controls retained-message delivery on subscribe
	// (v5 only, 0-2).
	RetainHandling byte
}

func (s *Subscription) optionsByte() byte {
	b := s.QoS & 0x03
	if s.NoLocal {
		b |= 0x04
	}
	if s.RetainAsPublished {
		b |= 0x08
	}
	b |= (s.RetainHandling & 0x03) << 4
	return b
}

func (s *Subscription) setOptions(b byte, v Version) error {
	s.QoS = b & 0x03
	if s.QoS > 2 {
		return newMalformed("subscription QoS 3 is reserved")
	}
	if !v.HasProperties() {
		// v3.1.1 reserves the upper six bits.
		if b&0xFC != 0 {
			return newMalformed("reserved subscription option bits set")
		}
		return nil
	}
	s.NoLocal = b&0x04 != 0
	s.RetainAsPublished = b&0x08 != 0
	s.RetainHandling = (b >> 4) & 0x03
	if s.RetainHandling > 2 {
		return newMalformed("retain handling 3 is reserved")
	}
	if b&0xC0 != 0 {
		return newMalformed("reserved subscription option bits set")
	}
	return nil
}

// SubscribePacket is the SUBSCRIBE packet of either protocol version.
type SubscribePacket struct {
	ID            uint16
	Subscriptions []Subscription
	Props         Properties
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType {
	return PacketSUBSCRIBE
}

// PacketID returns the packet identifier.
func (p *SubscribePacket) PacketID() uint16 { return p.ID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.ID = id }

// Encode writes the packet in the given protocol version.
func (p *SubscribePacket) Encode(w io.Writer, v Version) (int, error) {
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
	for i := range p.Subscriptions {
		sub := &p.Subscriptions[i]
		if _, err := encodeString(&buf, sub.TopicFilter); err != nil {
			return 0, err
		}
		buf.WriteByte(sub.optionsByte())
	}

	header := FixedHeader{
		PacketType:      PacketSUBSCRIBE,
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
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, newMalformed("not a SUBSCRIBE packet")
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
		if err := p.Props.ValidateFor(PropCtxSUBSCRIBE); err != nil {
			return total, err
		}
	}

	for total < int(header.RemainingLength) {
		var sub Subscription
		sub.TopicFilter, n, err = decodeString(r)
		total += n
		if err != nil {
			return total, err
		}
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return total, newMalformed("invalid topic filter")
		}

		var optBuf [1]byte
		n, err = io.ReadFull(r, optBuf[:])
		total += n
		if err != nil {
			return total, err
		}
		if err := sub.setOptions(optBuf[0], v); err != nil {
			return total, err
		}
		p.Subscriptions = append(p.Subscriptions, sub)
	}

	if len(p.Subscriptions) == 0 {
		return total, newViolation(ReasonProtocolError, "SUBSCRIBE with no topic filters")
	}
	return total, nil
}

// Validate checks the packet against the version's rules.
func (p *SubscribePacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if p.ID == 0 {
		return errZeroPacketID
	}
	if len(p.Subscriptions) == 0 {
		return newViolation(ReasonProtocolError, "SUBSCRIBE with no topic filters")
	}
	for i := range p.Subscriptions {
		sub := &p.Subscriptions[i]
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return err
		}
		if sub.QoS > 2 {
			return newMalformed("subscription QoS 3 is reserved")
		}
		if !v.HasProperties() && (sub.NoLocal || sub.RetainAsPublished || sub.RetainHandling != 0) {
			return newMalformed("subscription options are not valid in 3.1.1")
		}
	}
	if !v.HasProperties() && p.Props.Len() > 0 {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
