package mqtt

import "io"

// PropertyID is an MQTT v5.0 property identifier. v3.1.1 packets never
// carry a properties block; every type here is v5-only.
type PropertyID byte

const (
	PropPayloadFormatIndicator   PropertyID = 0x01
	PropMessageExpiryInterval    PropertyID = 0x02
	PropContentType              PropertyID = 0x03
	PropResponseTopic            PropertyID = 0x08
	PropCorrelationData          PropertyID = 0x09
	PropSubscriptionIdentifier   PropertyID = 0x0B
	PropSessionExpiryInterval    PropertyID = 0x11
	PropAssignedClientIdentifier PropertyID = 0x12
	PropServerKeepAlive          PropertyID = 0x13
	PropAuthenticationMethod     PropertyID = 0x15
	PropAuthenticationData       PropertyID = 0x16
	PropRequestProblemInfo       PropertyID = 0x17
	PropWillDelayInterval        PropertyID = 0x18
	PropRequestResponseInfo      PropertyID = 0x19
	PropResponseInformation      PropertyID = 0x1A
	PropServerReference          PropertyID = 0x1C
	PropReasonString             PropertyID = 0x1F
	PropReceiveMaximum           PropertyID = 0x21
	PropTopicAliasMaximum        PropertyID = 0x22
	PropTopicAlias               PropertyID = 0x23
	PropMaximumQoS               PropertyID = 0x24
	PropRetainAvailable          PropertyID = 0x25
	PropUserProperty             PropertyID = 0x26
	PropMaximumPacketSize        PropertyID = 0x27
	PropWildcardSubAvailable     PropertyID = 0x28
	PropSubscriptionIDAvailable  PropertyID = 0x29
	PropSharedSubAvailable       PropertyID = 0x2A
)

// PropertyType is the wire encoding of a property value.
type PropertyType byte

const (
	PropTypeByte        PropertyType = 0
	PropTypeTwoByteInt  PropertyType = 1
	PropTypeFourByteInt PropertyType = 2
	PropTypeVarInt      PropertyType = 3
	PropTypeString      PropertyType = 4
	PropTypeBinary      PropertyType = 5
	PropTypeStringPair  PropertyType = 6
)

var propertyTypeMap = map[PropertyID]PropertyType{
	PropPayloadFormatIndicator:   PropTypeByte,
	PropMessageExpiryInterval:    PropTypeFourByteInt,
	PropContentType:              PropTypeString,
	PropResponseTopic:            PropTypeString,
	PropCorrelationData:          PropTypeBinary,
	PropSubscriptionIdentifier:   PropTypeVarInt,
	PropSessionExpiryInterval:    PropTypeFourByteInt,
	PropAssignedClientIdentifier: PropTypeString,
	PropServerKeepAlive:          PropTypeTwoByteInt,
	PropAuthenticationMethod:     PropTypeString,
	PropAuthenticationData:       PropTypeBinary,
	PropRequestProblemInfo:       PropTypeByte,
	PropWillDelayInterval:        PropTypeFourByteInt,
	PropRequestResponseInfo:      PropTypeByte,
	PropResponseInformation:      PropTypeString,
	PropServerReference:          PropTypeString,
	PropReasonString:             PropTypeString,
	PropReceiveMaximum:           PropTypeTwoByteInt,
	PropTopicAliasMaximum:        PropTypeTwoByteInt,
	PropTopicAlias:               PropTypeTwoByteInt,
	PropMaximumQoS:               PropTypeByte,
	PropRetainAvailable:          PropTypeByte,
	PropUserProperty:             PropTypeStringPair,
	PropMaximumPacketSize:        PropTypeFourByteInt,
	PropWildcardSubAvailable:     PropTypeByte,
	PropSubscriptionIDAvailable:  PropTypeByte,
	PropSharedSubAvailable:       PropTypeByte,
}

// PropertyType returns the wire type for the identifier.
func (p PropertyID) PropertyType() PropertyType {
	if t, ok := propertyTypeMap[p]; ok {
		return t
	}
	return PropTypeByte
}

// PropertyContext names the packet position a properties block appears in,
// used to validate which identifiers are legal there.
type PropertyContext int

const (
	PropCtxCONNECT PropertyContext = iota
	PropCtxCONNACK
	PropCtxPUBLISH
	PropCtxPUBACK
	PropCtxPUBREC
	PropCtxPUBREL
	PropCtxPUBCOMP
	PropCtxSUBSCRIBE
	PropCtxSUBACK
	PropCtxUNSUBSCRIBE
	PropCtxUNSUBACK
	PropCtxDISCONNECT
	PropCtxAUTH
	PropCtxWill
)

var propertyContexts = map[PropertyContext]map[PropertyID]bool{
	PropCtxCONNECT: {
		PropSessionExpiryInterval: true, PropReceiveMaximum: true,
		PropMaximumPacketSize: true, PropTopicAliasMaximum: true,
		PropRequestResponseInfo: true, PropRequestProblemInfo: true,
		PropUserProperty: true, PropAuthenticationMethod: true,
		PropAuthenticationData: true,
	},
	PropCtxCONNACK: {
		PropSessionExpiryInterval: true, PropReceiveMaximum: true,
		PropMaximumQoS: true, PropRetainAvailable: true,
		PropMaximumPacketSize: true, PropAssignedClientIdentifier: true,
		PropTopicAliasMaximum: true, PropReasonString: true,
		PropUserProperty: true, PropWildcardSubAvailable: true,
		PropSubscriptionIDAvailable: true, PropSharedSubAvailable: true,
		PropServerKeepAlive: true, PropResponseInformation: true,
		PropServerReference: true, PropAuthenticationMethod: true,
		PropAuthenticationData: true,
	},
	PropCtxPUBLISH: {
		PropPayloadFormatIndicator: true, PropMessageExpiryInterval: true,
		PropTopicAlias: true, PropResponseTopic: true,
		PropCorrelationData: true, PropUserProperty: true,
		PropSubscriptionIdentifier: true, PropContentType: true,
	},
	PropCtxPUBACK:  ackPropertySet(),
	PropCtxPUBREC:  ackPropertySet(),
	PropCtxPUBREL:  ackPropertySet(),
	PropCtxPUBCOMP: ackPropertySet(),
	PropCtxSUBSCRIBE: {
		PropSubscriptionIdentifier: true, PropUserProperty: true,
	},
	PropCtxSUBACK:      ackPropertySet(),
	PropCtxUNSUBSCRIBE: {PropUserProperty: true},
	PropCtxUNSUBACK:    ackPropertySet(),
	PropCtxDISCONNECT: {
		PropSessionExpiryInterval: true, PropReasonString: true,
		PropUserProperty: true, PropServerReference: true,
	},
	PropCtxAUTH: {
		PropAuthenticationMethod: true, PropAuthenticationData: true,
		PropReasonString: true, PropUserProperty: true,
	},
	PropCtxWill: {
		PropWillDelayInterval: true, PropPayloadFormatIndicator: true,
		PropMessageExpiryInterval: true, PropContentType: true,
		PropResponseTopic: true, PropCorrelationData: true,
		PropUserProperty: true,
	},
}

func ackPropertySet() map[PropertyID]bool {
	return map[PropertyID]bool{
		PropReasonString: true, PropUserProperty: true,
	}
}

// repeatableProps may appear more than once in one block.
var repeatableProps = map[PropertyID]bool{
	PropUserProperty:           true,
	PropSubscriptionIdentifier: true,
}

// Properties is an ordered collection of v5 properties. Order is preserved
// so that decode(encode(p)) round-trips byte-identically.
type Properties struct {
	props []property
}

type property struct {
	id    PropertyID
	value any
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.props)
}

// Has reports whether the identifier is present.
func (p *Properties) Has(id PropertyID) bool {
	return p.Get(id) != nil
}

// Get returns the first value for the identifier, or nil.
func (p *Properties) Get(id PropertyID) any {
	if p == nil {
		return nil
	}
	for i := range p.props {
		if p.props[i].id == id {
			return p.props[i].value
		}
	}
	return nil
}

// GetAll returns every value for the identifier, for repeatable properties.
func (p *Properties) GetAll(id PropertyID) []any {
	if p == nil {
		return nil
	}
	var result []any
	for i := range p.props {
		if p.props[i].id == id {
			result = append(result, p.props[i].value)
		}
	}
	return result
}

// Set replaces the value for a single-occurrence identifier.
func (p *Properties) Set(id PropertyID, value any) {
	if p == nil {
		return
	}
	for i := range p.props {
		if p.props[i].id == id {
			p.props[i].value = value
			return
		}
	}
	p.props = append(p.props, property{id: id, value: value})
}

// Add appends a value; use for repeatable identifiers.
func (p *Properties) Add(id PropertyID, value any) {
	if p == nil {
		return
	}
	p.props = append(p.props, property{id: id, value: value})
}

// Delete removes every occurrence of the identifier.
func (p *Properties) Delete(id PropertyID) {
	if p == nil {
		return
	}
	n := 0
	for i := range p.props {
		if p.props[i].id != id {
			p.props[n] = p.props[i]
			n++
		}
	}
	p.props = p.props[:n]
}

// Typed getters.

// GetByte returns the byte value, or 0.
func (p *Properties) GetByte(id PropertyID) byte {
	if b, ok := p.Get(id).(byte); ok {
		return b
	}
	return 0
}

// GetUint16 returns the uint16 value, or 0.
func (p *Properties) GetUint16(id PropertyID) uint16 {
	if u, ok := p.Get(id).(uint16); ok {
		return u
	}
	return 0
}

// GetUint32 returns the uint32 value, or 0.
func (p *Properties) GetUint32(id PropertyID) uint32 {
	if u, ok := p.Get(id).(uint32); ok {
		return u
	}
	return 0
}

// GetString returns the string value, or "".
func (p *Properties) GetString(id PropertyID) string {
	if s, ok := p.Get(id).(string); ok {
		return s
	}
	return ""
}

// GetBinary returns the binary value, or nil.
func (p *Properties) GetBinary(id PropertyID) []byte {
	if b, ok := p.Get(id).([]byte); ok {
		return b
	}
	return nil
}

// GetAllStringPairs returns all string-pair values for the identifier.
func (p *Properties) GetAllStringPairs(id PropertyID) []StringPair {
	all := p.GetAll(id)
	if all == nil {
		return nil
	}
	result := make([]StringPair, 0, len(all))
	for _, v := range all {
		if sp, ok := v.(StringPair); ok {
			result = append(result, sp)
		}
	}
	return result
}

// GetAllVarInts returns all variable-integer values for the identifier.
func (p *Properties) GetAllVarInts(id PropertyID) []uint32 {
	all := p.GetAll(id)
	if all == nil {
		return nil
	}
	result := make([]uint32, 0, len(all))
	for _, v := range all {
		if u, ok := v.(uint32); ok {
			result = append(result, u)
		}
	}
	return result
}

// ValidateFor checks that every identifier is legal in the given context and
// that non-repeatable identifiers occur at most once.
func (p *Properties) ValidateFor(ctx PropertyContext) error {
	if p == nil {
		return nil
	}
	allowed := propertyContexts[ctx]
	seen := make(map[PropertyID]bool, len(p.props))
	for i := range p.props {
		id := p.props[i].id
		if !allowed[id] {
			return newMalformed("property 0x" + hexByte(byte(id)) + " not allowed here")
		}
		if seen[id] && !repeatableProps[id] {
			return newMalformed("duplicate property 0x" + hexByte(byte(id)))
		}
		seen[id] = true
	}
	return nil
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}

// Encode writes the properties block: a varint total length followed by the
// identifier/value pairs.
func (p *Properties) Encode(w io.Writer) (int, error) {
	if p == nil || len(p.props) == 0 {
		return encodeVarint(w, 0)
	}

	size := p.size()
	n, err := encodeVarint(w, uint32(size))
	if err != nil {
		return n, err
	}

	for i := range p.props {
		n2, err := p.encodeProperty(w, &p.props[i])
		n += n2
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Properties) encodeProperty(w io.Writer, prop *property) (int, error) {
	n, err := w.Write([]byte{byte(prop.id)})
	if err != nil {
		return n, err
	}

	var n2 int
	switch prop.id.PropertyType() {
	case PropTypeByte:
		b, _ := prop.value.(byte)
		n2, err = w.Write([]byte{b})
	case PropTypeTwoByteInt:
		v, _ := prop.value.(uint16)
		n2, err = encodeUint16(w, v)
	case PropTypeFourByteInt:
		v, _ := prop.value.(uint32)
		n2, err = w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	case PropTypeVarInt:
		v, _ := prop.value.(uint32)
		n2, err = encodeVarint(w, v)
	case PropTypeString:
		s, _ := prop.value.(string)
		n2, err = encodeString(w, s)
	case PropTypeBinary:
		b, _ := prop.value.([]byte)
		n2, err = encodeBinary(w, b)
	case PropTypeStringPair:
		sp, _ := prop.value.(StringPair)
		n2, err = encodeStringPair(w, sp)
	}
	return n + n2, err
}

func (p *Properties) size() int {
	if p == nil {
		return 0
	}
	size := 0
	for i := range p.props {
		prop := &p.props[i]
		size++ // identifier byte
		switch prop.id.PropertyType() {
		case PropTypeByte:
			size++
		case PropTypeTwoByteInt:
			size += 2
		case PropTypeFourByteInt:
			size += 4
		case PropTypeVarInt:
			v, _ := prop.value.(uint32)
			size += varintSize(v)
		case PropTypeString:
			s, _ := prop.value.(string)
			size += 2 + len(s)
		case PropTypeBinary:
			b, _ := prop.value.([]byte)
			size += 2 + len(b)
		case PropTypeStringPair:
			sp, _ := prop.value.(StringPair)
			size += 2 + len(sp.Key) + 2 + len(sp.Value)
		}
	}
	return size
}

// Decode reads a properties block. An unknown identifier is a
// malformed-packet error.
func (p *Properties) Decode(r io.Reader) (int, error) {
	length, n, err := decodeVarint(r)
	if err != nil {
		return n, err
	}
	if length == 0 {
		return n, nil
	}

	remaining := int(length)
	for remaining > 0 {
		var idBuf [1]byte
		n2, err := io.ReadFull(r, idBuf[:])
		n += n2
		remaining -= n2
		if err != nil {
			return n, err
		}

		id := PropertyID(idBuf[0])
		propType, ok := propertyTypeMap[id]
		if !ok {
			return n, newMalformed("unknown property identifier 0x" + hexByte(idBuf[0]))
		}

		var value any
		var n3 int
		switch propType {
		case PropTypeByte:
			var buf [1]byte
			n3, err = io.ReadFull(r, buf[:])
			value = buf[0]
		case PropTypeTwoByteInt:
			var v uint16
			v, n3, err = decodeUint16(r)
			value = v
		case PropTypeFourByteInt:
			var buf [4]byte
			n3, err = io.ReadFull(r, buf[:])
			value = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
		case PropTypeVarInt:
			var v uint32
			v, n3, err = decodeVarint(r)
			value = v
		case PropTypeString:
			var s string
			s, n3, err = decodeString(r)
			value = s
		case PropTypeBinary:
			var b []byte
			b, n3, err = decodeBinary(r)
			value = b
		case PropTypeStringPair:
			var sp StringPair
			sp, n3, err = decodeStringPair(r)
			value = sp
		}

		n += n3
		remaining -= n3
		if err != nil {
			return n, err
		}
		p.props = append(p.props, property{id: id, value: value})
	}

	if remaining < 0 {
		return n, newMalformed("property length mismatch")
	}
	return n, nil
}
