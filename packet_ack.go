package mqtt

import (
	"bytes"
	"io"
)

// ackPacket carries the state shared by PUBACK, PUBREC, PUBREL and PUBCOMP:
// a packet identifier and, on v5.0 only, an optional reason code and
// properties. A v3.1.1 ack is exactly the two identifier bytes.
type ackPacket struct {
	ID         uint16
	ReasonCode ReasonCode
	Props      Properties
}

func encodeAck(w io.Writer, packetType PacketType, flags byte, ack *ackPacket, v Version) (int, error) {
	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, ack.ID); err != nil {
		return 0, err
	}

	// The reason code and properties are omitted on success with no
	// properties; a 2-byte body means Success.
	if v.HasProperties() && (ack.ReasonCode != ReasonSuccess || ack.Props.Len() > 0) {
		buf.WriteByte(byte(ack.ReasonCode))
		if ack.Props.Len() > 0 {
			if _, err := ack.Props.Encode(&buf); err != nil {
				return 0, err
			}
		}
	}

	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: uint32(buf.Len()),
	}
	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}
	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func decodeAck(r io.Reader, header FixedHeader, ack *ackPacket, propCtx PropertyContext, v Version) (int, error) {
	var total int

	var n int
	var err error
	ack.ID, n, err = decodeUint16(r)
	total += n
	if err != nil {
		return total, err
	}
	if ack.ID == 0 {
		return total, errZeroPacketID
	}

	ack.ReasonCode = ReasonSuccess

	if !v.HasProperties() {
		if header.RemainingLength != 2 {
			return total, newMalformed("3.1.1 acknowledgement must be 2 bytes")
		}
		return total, nil
	}

	if header.RemainingLength > 2 {
		var reasonBuf [1]byte
		n, err = io.ReadFull(r, reasonBuf[:])
		total += n
		if err != nil {
			return total, err
		}
		ack.ReasonCode = ReasonCode(reasonBuf[0])

		if header.RemainingLength > 3 {
			n, err = ack.Props.Decode(r)
			total += n
			if err != nil {
				return total, err
			}
			if err := ack.Props.ValidateFor(propCtx); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

func validateAck(packetType PacketType, ack *ackPacket, v Version) error {
	if !v.Valid() {
		return ErrUnsupportedVersion
	}
	if ack.ID == 0 {
		return errZeroPacketID
	}
	if !v.HasProperties() {
		if ack.ReasonCode != ReasonSuccess || ack.Props.Len() > 0 {
			return newMalformed("reason codes are not valid in 3.1.1")
		}
		return nil
	}
	if !ack.ReasonCode.ValidForAck(packetType) {
		return newMalformed("reason code not valid for " + packetType.String())
	}
	return nil
}
