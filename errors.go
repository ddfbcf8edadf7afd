package mqtt

import (
	"errors"
	"fmt"
)

// Error taxonomy for the protocol engine. ErrNeedMoreData is not a failure:
// it tells the caller the buffered bytes do not yet hold a complete packet.
var (
	// ErrNeedMoreData indicates an incomplete packet in the decode buffer.
	ErrNeedMoreData = errors.New("mqtt: need more data")

	// ErrPacketIDExhausted indicates all 65535 packet identifiers are in
	// flight. Recoverable: the caller should retry after acknowledgements
	// drain the window.
	ErrPacketIDExhausted = errors.New("mqtt: no available packet identifiers")

	// ErrKeepAliveTimeout indicates no packet was exchanged within 1.5x the
	// negotiated keep-alive interval.
	ErrKeepAliveTimeout = errors.New("mqtt: keep-alive timeout")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("mqtt: session closed")

	// ErrPublishCancelled is reported to completion tokens when the
	// connection closes before the exchange finishes.
	ErrPublishCancelled = errors.New("mqtt: publish cancelled")
)

// MalformedPacketError reports a violation of the binary packet format.
// Fatal for the connection: the peer receives the most specific reason code
// the protocol phase allows.
type MalformedPacketError struct {
	Reason ReasonCode
	Detail string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("mqtt: malformed packet: %s", e.Detail)
}

// ReasonCodeValue returns the reason code to put on the wire, defaulting to
// Malformed Packet.
func (e *MalformedPacketError) ReasonCodeValue() ReasonCode {
	if e.Reason == ReasonSuccess {
		return ReasonMalformedPacket
	}
	return e.Reason
}

func newMalformed(detail string) *MalformedPacketError {
	return &MalformedPacketError{Reason: ReasonMalformedPacket, Detail: detail}
}

// ProtocolViolationError reports a semantically invalid packet sequence,
// such as a PUBREL for an unknown packet identifier or an exceeded
// receive-maximum window. Fatal: the session closes with the reason code.
type ProtocolViolationError struct {
	Reason ReasonCode
	Detail string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("mqtt: protocol violation: %s", e.Detail)
}

// ReasonCodeValue returns the reason code to put on the wire, defaulting to
// Protocol Error.
func (e *ProtocolViolationError) ReasonCodeValue() ReasonCode {
	if e.Reason == ReasonSuccess {
		return ReasonProtocolError
	}
	return e.Reason
}

func newViolation(reason ReasonCode, detail string) *ProtocolViolationError {
	return &ProtocolViolationError{Reason: reason, Detail: detail}
}

// IsMalformed reports whether err is a binary-format violation.
func IsMalformed(err error) bool {
	var me *MalformedPacketError
	return errors.As(err, &me)
}

// IsProtocolViolation reports whether err is a packet-sequence violation.
func IsProtocolViolation(err error) bool {
	var pe *ProtocolViolationError
	return errors.As(err, &pe)
}

// DisconnectReason extracts the reason code a fatal error should carry on
// the closing DISCONNECT or CONNACK.
func DisconnectReason(err error) ReasonCode {
	var me *MalformedPacketError
	if errors.As(err, &me) {
		return me.ReasonCodeValue()
	}
	var pe *ProtocolViolationError
	if errors.As(err, &pe) {
		return pe.ReasonCodeValue()
	}
	if errors.Is(err, ErrKeepAliveTimeout) {
		return ReasonKeepAliveTimeout
	}
	return ReasonUnspecifiedError
}
