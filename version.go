package mqtt

import "errors"

// Version identifies the MQTT protocol revision carried on a connection.
// The values are the protocol-level bytes from the CONNECT variable header.
type Version byte

const (
	// MQTTv311 is MQTT version 3.1.1 (protocol level 4).
	MQTTv311 Version = 4

	// MQTTv50 is MQTT version 5.0 (protocol level 5).
	MQTTv50 Version = 5
)

// ErrUnsupportedVersion is returned for protocol levels other than 4 and 5.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// String returns the protocol name used in human-readable output.
func (v Version) String() string {
	switch v {
	case MQTTv311:
		return "3.1.1"
	case MQTTv50:
		return "5.0"
	default:
		return "unknown"
	}
}

// Valid returns true for the two supported protocol levels.
func (v Version) Valid() bool {
	return v == MQTTv311 || v == MQTTv50
}

// HasProperties reports whether packets of this version carry a properties
// block. Only v5.0 does; v3.1.1 packets never carry properties or reason
// strings.
func (v Version) HasProperties() bool {
	return v == MQTTv50
}
