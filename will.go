package mqtt

import (
	"errors"
	"time"
)

var ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

// WillMessage is the Last Will and Testament carried in CONNECT. The
// fields past Retain come from the v5 will properties block and stay zero
// on 3.1.1 connections.
type WillMessage struct {
	// Topic is the will topic.
	Topic string

	// Payload is the will payload.
	Payload []byte

	// QoS is the quality of service level (0, 1, or 2).
	QoS byte

	// Retain indicates if the will message should be retained.
	Retain bool

	// DelayInterval postpones publication by this many seconds after the
	// connection drops; session expiry still cuts it short.
	DelayInterval uint32

	PayloadFormat   byte
	MessageExpiry   uint32
	ContentType     string
	ResponseTopic   string
	CorrelationData []byte
	UserProperties  []StringPair
}

// WillMessageFromConnect extracts the will message from a CONNECT packet,
// or nil when the will flag is clear.
func WillMessageFromConnect(pkt *ConnectPacket) *WillMessage {
	if !pkt.WillFlag {
		return nil
	}

	will := &WillMessage{
		Topic:   pkt.WillTopic,
		Payload: pkt.WillPayload,
		QoS:     pkt.WillQoS,
		Retain:  pkt.WillRetain,
	}

	if pkt.WillProps.Len() > 0 {
		will.DelayInterval = pkt.WillProps.GetUint32(PropWillDelayInterval)
		will.PayloadFormat = pkt.WillProps.GetByte(PropPayloadFormatIndicator)
		will.MessageExpiry = pkt.WillProps.GetUint32(PropMessageExpiryInterval)
		will.ContentType = pkt.WillProps.GetString(PropContentType)
		will.ResponseTopic = pkt.WillProps.GetString(PropResponseTopic)
		will.CorrelationData = pkt.WillProps.GetBinary(PropCorrelationData)
		will.UserProperties = pkt.WillProps.GetAllStringPairs(PropUserProperty)
	}

	return will
}

// ToMessage converts the will to a Message for publishing.
func (w *WillMessage) ToMessage() *Message {
	return &Message{
		Topic:           w.Topic,
		Payload:         w.Payload,
		QoS:             w.QoS,
		Retain:          w.Retain,
		PayloadFormat:   w.PayloadFormat,
		MessageExpiry:   w.MessageExpiry,
		ContentType:     w.ContentType,
		ResponseTopic:   w.ResponseTopic,
		CorrelationData: w.CorrelationData,
		UserProperties:  w.UserProperties,
	}
}

// ToProperties builds the v5 will properties block for a CONNECT packet.
func (w *WillMessage) ToProperties() Properties {
	var props Properties

	if w.DelayInterval > 0 {
		props.Set(PropWillDelayInterval, w.DelayInterval)
	}
	if w.PayloadFormat > 0 {
		props.Set(PropPayloadFormatIndicator, w.PayloadFormat)
	}
	if w.MessageExpiry > 0 {
		props.Set(PropMessageExpiryInterval, w.MessageExpiry)
	}
	if w.ContentType != "" {
		props.Set(PropContentType, w.ContentType)
	}
	if w.ResponseTopic != "" {
		props.Set(PropResponseTopic, w.ResponseTopic)
	}
	if len(w.CorrelationData) > 0 {
		props.Set(PropCorrelationData, w.CorrelationData)
	}
	for _, up := range w.UserProperties {
		props.Add(PropUserProperty, up)
	}

	return props
}

// ApplyToConnect sets the will fields on a CONNECT packet, with the
// properties block only on versions that carry one.
func (w *WillMessage) ApplyToConnect(pkt *ConnectPacket, v Version) {
	pkt.WillFlag = true
	pkt.WillTopic = w.Topic
	pkt.WillPayload = w.Payload
	pkt.WillQoS = w.QoS
	pkt.WillRetain = w.Retain
	if v.HasProperties() {
		pkt.WillProps = w.ToProperties()
	}
}

// Validate validates the will message.
func (w *WillMessage) Validate() error {
	if err := ValidateTopicName(w.Topic); err != nil {
		return err
	}
	if w.QoS > 2 {
		return ErrInvalidQoS
	}
	return nil
}

// PendingWill is a will message waiting out its delay interval after an
// abnormal disconnect.
type PendingWill struct {
	Will      *WillMessage
	ClientID  string
	PublishAt time.Time
}

// NewPendingWill creates a pending will with its delay applied.
func NewPendingWill(clientID string, will *WillMessage) *PendingWill {
	publishAt := time.Now()
	if will.DelayInterval > 0 {
		publishAt = publishAt.Add(time.Duration(will.DelayInterval) * time.Second)
	}

	return &PendingWill{
		Will:      will,
		ClientID:  clientID,
		PublishAt: publishAt,
	}
}

// IsReady returns true once the delay has elapsed.
func (p *PendingWill) IsReady() bool {
	return !time.Now().Before(p.PublishAt)
}

// TimeUntilPublish returns the remaining delay, never negative.
func (p *PendingWill) TimeUntilPublish() time.Duration {
	remaining := time.Until(p.PublishAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
