package mqtt

import (
	"errors"
	"io"
)

var (
	ErrPacketTooLarge    = errors.New("mqtt: packet exceeds maximum size")
	ErrUnknownPacketType = errors.New("mqtt: unknown packet type")
)

// newPacket returns a zero packet of the given type, or nil for types the
// version does not know.
func newPacket(t PacketType, v Version) Packet {
	if !t.Valid(v) {
		return nil
	}
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}
	case PacketCONNACK:
		return &ConnackPacket{}
	case PacketPUBLISH:
		return &PublishPacket{}
	case PacketPUBACK:
		return &PubackPacket{}
	case PacketPUBREC:
		return &PubrecPacket{}
	case PacketPUBREL:
		return &PubrelPacket{}
	case PacketPUBCOMP:
		return &PubcompPacket{}
	case PacketSUBSCRIBE:
		return &SubscribePacket{}
	case PacketSUBACK:
		return &SubackPacket{}
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}
	case PacketUNSUBACK:
		return &UnsubackPacket{}
	case PacketPINGREQ:
		return &PingreqPacket{}
	case PacketPINGRESP:
		return &PingrespPacket{}
	case PacketDISCONNECT:
		return &DisconnectPacket{}
	case PacketAUTH:
		return &AuthPacket{}
	default:
		return nil
	}
}

// ReadPacket reads one complete MQTT packet from the reader, decoding it
// under the given protocol version. If maxSize is greater than 0, packets
// larger than maxSize return ErrPacketTooLarge.
func ReadPacket(r io.Reader, v Version, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	packet := newPacket(header.PacketType, v)
	if packet == nil {
		return nil, n, ErrUnknownPacketType
	}

	reader := getBytesReader(remaining)
	defer putBytesReader(reader)

	if _, err := packet.Decode(reader, header, v); err != nil {
		return nil, n, err
	}
	return packet, n, nil
}

// WritePacket writes one complete MQTT packet to the writer, encoding it
// under the given protocol version. If maxSize is greater than 0, packets
// larger than maxSize return ErrPacketTooLarge.
func WritePacket(w io.Writer, packet Packet, v Version, maxSize uint32) (int, error) {
	if err := packet.Validate(v); err != nil {
		return 0, err
	}

	// The size check needs the full encoding up front.
	if maxSize > 0 {
		buf := getBytesBuffer()
		defer putBytesBuffer(buf)

		n, err := packet.Encode(buf, v)
		if err != nil {
			return 0, err
		}
		if uint32(n) > maxSize {
			return 0, ErrPacketTooLarge
		}
		return w.Write(buf.Bytes())
	}

	return packet.Encode(w, v)
}

// Decoder accumulates raw bytes and yields complete packets. Push appends
// whatever arrived from the transport; Next returns the next packet or
// ErrNeedMoreData when the buffer holds only part of one. A packet split
// across pushes never fails, it just waits.
type Decoder struct {
	version Version
	maxSize uint32
	buf     []byte
	fatal   error
}

// NewDecoder returns a Decoder for the given protocol version. maxSize of 0
// disables the packet size limit.
func NewDecoder(v Version, maxSize uint32) *Decoder {
	return &Decoder{version: v, maxSize: maxSize}
}

// Push appends raw bytes received from the transport.
func (d *Decoder) Push(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next decodes and returns the next complete packet. It returns
// ErrNeedMoreData when the buffered bytes do not yet form a whole packet.
// Any other error is fatal: the stream is corrupt and every later call
// returns the same error.
func (d *Decoder) Next() (Packet, error) {
	if d.fatal != nil {
		return nil, d.fatal
	}

	header, headerLen, err := peekHeader(d.buf)
	if err != nil {
		if !errors.Is(err, ErrNeedMoreData) {
			d.fatal = err
		}
		return nil, err
	}

	if d.maxSize > 0 && header.RemainingLength > d.maxSize {
		d.fatal = ErrPacketTooLarge
		return nil, d.fatal
	}

	end := headerLen + int(header.RemainingLength)
	if len(d.buf) < end {
		return nil, ErrNeedMoreData
	}

	// CONNECT names its own version; the decoder adopts it so a server
	// can speak whichever version the client opened with.
	if header.PacketType == PacketCONNECT {
		reader := getBytesReader(d.buf[headerLen:end])
		pkt, v, _, err := DecodeConnectVersion(reader, header)
		putBytesReader(reader)
		if err != nil {
			d.fatal = err
			return nil, err
		}
		d.version = v
		d.buf = d.buf[end:]
		return pkt, nil
	}

	packet := newPacket(header.PacketType, d.version)
	if packet == nil {
		d.fatal = ErrUnknownPacketType
		return nil, d.fatal
	}

	reader := getBytesReader(d.buf[headerLen:end])
	_, err = packet.Decode(reader, header, d.version)
	putBytesReader(reader)
	if err != nil {
		d.fatal = err
		return nil, err
	}

	d.buf = d.buf[end:]
	return packet, nil
}

// Version returns the protocol version the decoder currently applies.
func (d *Decoder) Version() Version {
	return d.version
}

// peekHeader parses a fixed header from the front of buf without consuming
// it, returning the header and its encoded length.
func peekHeader(buf []byte) (FixedHeader, int, error) {
	var header FixedHeader
	if len(buf) < 2 {
		return header, 0, ErrNeedMoreData
	}

	header.PacketType = PacketType(buf[0] >> 4)
	header.Flags = buf[0] & 0x0F

	// Variable-length remaining length, at most 4 bytes.
	var length uint32
	var shift uint
	pos := 1
	for {
		// A fourth length byte with its continuation bit set is malformed
		// no matter what follows, so check before asking for more data.
		if pos > 4 {
			return header, 0, newMalformed("remaining length exceeds 4 bytes")
		}
		if pos >= len(buf) {
			return header, 0, ErrNeedMoreData
		}
		b := buf[pos]
		length |= uint32(b&0x7F) << shift
		pos++
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	if length > maxVarint {
		return header, 0, newMalformed("remaining length too large")
	}

	header.RemainingLength = length
	if err := header.ValidateFlags(); err != nil {
		return header, 0, err
	}
	return header, pos, nil
}
