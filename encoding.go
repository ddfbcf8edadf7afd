package mqtt

import (
	"encoding/binary"
	"io"
	"unicode/utf8"
)

const (
	maxUint16 = 65535

	// maxVarint is the largest value a variable byte integer can encode
	// (four bytes of seven payload bits each).
	maxVarint = 268435455

	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// encodeString writes a UTF-8 string with a 2-byte big-endian length prefix.
func encodeString(w io.Writer, s string) (int, error) {
	if len(s) > maxUint16 {
		return 0, newMalformed("string exceeds 65535 bytes")
	}
	if !utf8.ValidString(s) {
		return 0, newMalformed("invalid UTF-8 string")
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return 0, newMalformed("string contains NUL")
		}
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))

	n, err := w.Write(lenBuf[:])
	if err != nil {
		return n, err
	}
	n2, err := io.WriteString(w, s)
	return n + n2, err
}

// decodeString reads a length-prefixed UTF-8 string. Invalid UTF-8 and
// embedded NUL are malformed-packet errors.
func decodeString(r io.Reader) (string, int, error) {
	var lenBuf [2]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		return "", n, err
	}

	length := binary.BigEndian.Uint16(lenBuf[:])
	if length == 0 {
		return "", n, nil
	}

	buf := make([]byte, length)
	n2, err := io.ReadFull(r, buf)
	n += n2
	if err != nil {
		return "", n, err
	}

	if !utf8.Valid(buf) {
		return "", n, newMalformed("invalid UTF-8 string")
	}
	for i := range buf {
		if buf[i] == 0 {
			return "", n, newMalformed("string contains NUL")
		}
	}

	return string(buf), n, nil
}

// encodeBinary writes binary data with a 2-byte big-endian length prefix.
func encodeBinary(w io.Writer, data []byte) (int, error) {
	if len(data) > maxUint16 {
		return 0, newMalformed("binary field exceeds 65535 bytes")
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))

	n, err := w.Write(lenBuf[:])
	if err != nil {
		return n, err
	}
	n2, err := w.Write(data)
	return n + n2, err
}

// decodeBinary reads length-prefixed binary data.
func decodeBinary(r io.Reader) ([]byte, int, error) {
	var lenBuf [2]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		return nil, n, err
	}

	length := binary.BigEndian.Uint16(lenBuf[:])
	if length == 0 {
		return nil, n, nil
	}

	buf := make([]byte, length)
	n2, err := io.ReadFull(r, buf)
	n += n2
	if err != nil {
		return nil, n, err
	}
	return buf, n, nil
}

// encodeUint16 writes a 2-byte big-endian integer.
func encodeUint16(w io.Writer, v uint16) (int, error) {
	return w.Write([]byte{byte(v >> 8), byte(v)})
}

// decodeUint16 reads a 2-byte big-endian integer.
func decodeUint16(r io.Reader) (uint16, int, error) {
	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, n, err
	}
	return binary.BigEndian.Uint16(buf[:]), n, nil
}

// StringPair is a UTF-8 key-value pair used by the v5 User Property.
type StringPair struct {
	Key   string
	Value string
}

func encodeStringPair(w io.Writer, pair StringPair) (int, error) {
	n, err := encodeString(w, pair.Key)
	if err != nil {
		return n, err
	}
	n2, err := encodeString(w, pair.Value)
	return n + n2, err
}

func decodeStringPair(r io.Reader) (StringPair, int, error) {
	key, n, err := decodeString(r)
	if err != nil {
		return StringPair{}, n, err
	}
	value, n2, err := decodeString(r)
	n += n2
	if err != nil {
		return StringPair{}, n, err
	}
	return StringPair{Key: key, Value: value}, n, nil
}

// encodeVarint writes a variable byte integer (1-4 bytes, 7 bits per byte
// plus a continuation bit).
func encodeVarint(w io.Writer, value uint32) (int, error) {
	if value > maxVarint {
		return 0, newMalformed("variable byte integer exceeds maximum")
	}

	var buf [4]byte
	n := 0
	for {
		b := byte(value & varintValueMask)
		value >>= 7
		if value > 0 {
			b |= varintContinueBit
		}
		buf[n] = b
		n++
		if value == 0 {
			break
		}
	}
	return w.Write(buf[:n])
}

// decodeVarint reads a variable byte integer. An encoding longer than four
// bytes is a malformed-packet error.
func decodeVarint(r io.Reader) (uint32, int, error) {
	var value uint32
	var multiplier uint32 = 1
	var buf [1]byte
	bytesRead := 0

	for {
		n, err := io.ReadFull(r, buf[:])
		bytesRead += n
		if err != nil {
			return 0, bytesRead, err
		}

		b := buf[0]
		value += uint32(b&varintValueMask) * multiplier
		if value > maxVarint {
			return 0, bytesRead, newMalformed("variable byte integer exceeds maximum")
		}
		if b&varintContinueBit == 0 {
			break
		}
		multiplier *= 128
		if multiplier > 128*128*128 {
			return 0, bytesRead, newMalformed("variable byte integer longer than 4 bytes")
		}
	}
	return value, bytesRead, nil
}

// varintSize returns the encoded size of a variable byte integer.
func varintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}
