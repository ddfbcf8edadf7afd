package mqtt

import "io"

// Packet is implemented by every MQTT control packet. The protocol version
// is threaded through encode and decode; one packet struct serves both
// v3.1.1 and v5.0, with the properties block present only on the latter.
type Packet interface {
	// Type returns the control packet type.
	Type() PacketType

	// Encode writes the complete packet, fixed header included, in the
	// given protocol version. Returns bytes written.
	Encode(w io.Writer, v Version) (int, error)

	// Decode reads the packet body from r; the fixed header has already
	// been consumed by the caller. Returns bytes read.
	Decode(r io.Reader, header FixedHeader, v Version) (int, error)

	// Validate checks the packet contents against the version's rules.
	Validate(v Version) error
}

// PacketWithID is implemented by packets carrying a packet identifier.
type PacketWithID interface {
	Packet

	PacketID() uint16
	SetPacketID(id uint16)
}

// Message is the application-facing publish payload: what the delivery
// callback receives and what Publish accepts.
type Message struct {
	// Topic is the topic name the message is published to.
	Topic string

	// Payload is the application payload.
	Payload []byte

	// QoS is the delivery guarantee level (0, 1 or 2).
	QoS byte

	// Retain marks the message as retained.
	Retain bool

	// Dup is set on protocol-level retransmissions. Visible for logging;
	// duplicate suppression is handled inside the delivery engine.
	Dup bool

	// v5-only metadata. Ignored when the connection speaks 3.1.1.

	PayloadFormat   byte
	MessageExpiry   uint32
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Payload != nil {
		clone.Payload = append([]byte(nil), m.Payload...)
	}
	if m.CorrelationData != nil {
		clone.CorrelationData = append([]byte(nil), m.CorrelationData...)
	}
	if m.UserProperties != nil {
		clone.UserProperties = append([]StringPair(nil), m.UserProperties...)
	}
	return &clone
}

// ToProperties converts message metadata to a v5 properties block for a
// PUBLISH packet.
func (m *Message) ToProperties() Properties {
	var p Properties
	if m.PayloadFormat != 0 {
		p.Set(PropPayloadFormatIndicator, m.PayloadFormat)
	}
	if m.MessageExpiry != 0 {
		p.Set(PropMessageExpiryInterval, m.MessageExpiry)
	}
	if m.ContentType != "" {
		p.Set(PropContentType, m.ContentType)
	}
	if m.ResponseTopic != "" {
		p.Set(PropResponseTopic, m.ResponseTopic)
	}
	if len(m.CorrelationData) > 0 {
		p.Set(PropCorrelationData, m.CorrelationData)
	}
	for _, up := range m.UserProperties {
		p.Add(PropUserProperty, up)
	}
	return p
}

// FromProperties fills message metadata from a decoded properties block.
func (m *Message) FromProperties(p *Properties) {
	if p == nil {
		return
	}
	m.PayloadFormat = p.GetByte(PropPayloadFormatIndicator)
	m.MessageExpiry = p.GetUint32(PropMessageExpiryInterval)
	m.ContentType = p.GetString(PropContentType)
	m.ResponseTopic = p.GetString(PropResponseTopic)
	m.CorrelationData = p.GetBinary(PropCorrelationData)
	m.UserProperties = p.GetAllStringPairs(PropUserProperty)
}
