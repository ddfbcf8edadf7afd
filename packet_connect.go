package mqtt

import (
	"bytes"
	"io"
)

const protocolName = "MQTT"

// Connect flag bits.
const (
	connectFlagCleanSession = 0x02
	connectFlagWillFlag     = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPasswordFlag = 0x40
	connectFlagUsernameFlag = 0x80
)

// ConnectPacket is the CONNECT packet of either protocol version. The
// properties fields are encoded only for v5.0.
type ConnectPacket struct {
	// ClientID is the client identifier.
	ClientID string

	// CleanStart requests a fresh session (v3.1.1 calls it clean session).
	CleanStart bool

	// KeepAlive is the keep-alive interval in seconds; 0 disables it.
	KeepAlive uint16

	// Props holds the v5 CONNECT properties.
	Props Properties

	Username string
	Password []byte

	// Will message configuration.
	WillFlag    bool
	WillRetain  bool
	WillQoS     byte
	WillTopic   string
	WillPayload []byte
	WillProps   Properties
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

func (p *ConnectPacket) connectFlags() byte {
	var flags byte
	if p.CleanStart {
		flags |= connectFlagCleanSession
	}
	if p.WillFlag {
		flags |= connectFlagWillFlag
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= connectFlagWillRetain
		}
	}
	if len(p.Password) > 0 {
		flags |= connectFlagPasswordFlag
	}
	if p.Username != "" {
		flags |= connectFlagUsernameFlag
	}
	return flags
}

func (p *ConnectPacket) setConnectFlags(flags byte) error {
	if flags&0x01 != 0 {
		return newMalformed("CONNECT reserved flag set")
	}

	p.CleanStart = flags&connectFlagCleanSession != 0
	p.WillFlag = flags&connectFlagWillFlag != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&connectFlagWillRetain != 0

	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return newMalformed("will flags set without will flag")
	}
	if p.WillQoS > 2 {
		return newMalformed("will QoS 3 is reserved")
	}
	return nil
}

// Encode writes the packet in the given protocol version.
func (p *ConnectPacket) Encode(w io.Writer, v Version) (int, error) {
	if err := p.Validate(v); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeString(&buf, protocolName); err != nil {
		return 0, err
	}
	buf.WriteByte(byte(v))
	buf.WriteByte(p.connectFlags())
	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	if v.HasProperties() {
		if _, err := p.Props.Encode(&buf); err != nil {
			return 0, err
		}
	}

	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	if p.WillFlag {
		if v.HasProperties() {
			if _, err := p.WillProps.Encode(&buf); err != nil {
				return 0, err
			}
		}
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBinary(&buf, p.WillPayload); err != nil {
			return 0, err
		}
	}

	if p.Username != "" {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}
	if len(p.Password) > 0 {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketCONNECT,
		RemainingLength: uint32(buf.Len()),
	}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet body. The declared protocol level must match v;
// DecodeConnectVersion exists for servers that learn the version from the
// packet itself.
func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader, v Version) (int, error) {
	got, n, err := p.decodeBody(r, header)
	if err != nil {
		return n, err
	}
	if got != v {
		return n, ErrUnsupportedVersion
	}
	return n, nil
}

// DecodeConnectVersion decodes a CONNECT packet and returns the protocol
// version the client declared. The server side uses this before any version
// has been negotiated.
func DecodeConnectVersion(r io.Reader, header FixedHeader) (*ConnectPacket, Version, int, error) {
	p := &ConnectPacket{}
	v, n, err := p.decodeBody(r, header)
	return p, v, n, err
}

func (p *ConnectPacket) decodeBody(r io.Reader, header FixedHeader) (Version, int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, 0, newMalformed("not a CONNECT packet")
	}

	var total int

	protoName, n, err := decodeString(r)
	total += n
	if err != nil {
		return 0, total, err
	}
	if protoName != protocolName {
		return 0, total, newMalformed("bad protocol name " + protoName)
	}

	var versionBuf [1]byte
	n, err = io.ReadFull(r, versionBuf[:])
	total += n
	if err != nil {
		return 0, total, err
	}
	v := Version(versionBuf[0])
	if !v.Valid() {
		return v, total, ErrUnsupportedVersion
	}

	var flagsBuf [1]byte
	n, err = io.ReadFull(r, flagsBuf[:])
	total += n
	if err != nil {
		return v, total, err
	}
	if err := p.setConnectFlags(flagsBuf[0]); err != nil {
		return v, total, err
	}
	usernameFlag := flagsBuf[0]&connectFlagUsernameFlag != 0
	passwordFlag := flagsBuf[0]&connectFlagPasswordFlag != 0

	p.KeepAlive, n, err = decodeUint16(r)
	total += n
	if err != nil {
		return v, total, err
	}

	if v.HasProperties() {
		n, err = p.Props.Decode(r)
		total += n
		if err != nil {
			return v, total, err
		}
		if err := p.Props.ValidateFor(PropCtxCONNECT); err != nil {
			return v, total, err
		}
	}

	p.ClientID, n, err = decodeString(r)
	total += n
	if err != nil {
		return v, total, err
	}

	if p.WillFlag {
		if v.HasProperties() {
			n, err = p.WillProps.Decode(r)
			total += n
			if err != nil {
				return v, total, err
			}
			if err := p.WillProps.ValidateFor(PropCtxWill); err != nil {
				return v, total, err
			}
		}
		p.WillTopic, n, err = decodeString(r)
		total += n
		if err != nil {
			return v, total, err
		}
		p.WillPayload, n, err = decodeBinary(r)
		total += n
		if err != nil {
			return v, total, err
		}
	}

	if usernameFlag {
		p.Username, n, err = decodeString(r)
		total += n
		if err != nil {
			return v, total, err
		}
	}
	if passwordFlag {
		p.Password, n, err = decodeBinary(r)
		total += n
		if err != nil {
			return v, total, err
		}
	}

	return v, total, nil
}

// Validate checks the packet against the version's rules.
func (p *ConnectPacket) Validate(v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if len(p.ClientID) > maxUint16 {
		return newMalformed("client identifier too long")
	}
	// v3.1.1 requires a client identifier when the session is persistent.
	if v == MQTTv311 && !p.CleanStart && p.ClientID == "" {
		return newViolation(ReasonClientIDNotValid, "empty client identifier with persistent session")
	}
	if p.WillQoS > 2 {
		return newMalformed("will QoS 3 is reserved")
	}
	if !p.WillFlag && (p.WillRetain || p.WillQoS != 0) {
		return newMalformed("will flags set without will flag")
	}
	if p.WillFlag {
		if err := ValidateTopicName(p.WillTopic); err != nil {
			return err
		}
	}
	if !v.HasProperties() && (p.Props.Len() > 0 || p.WillProps.Len() > 0) {
		return newMalformed("properties are not valid in 3.1.1")
	}
	return nil
}
