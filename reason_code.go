package mqtt

// ReasonCode is an MQTT v5.0 reason code carried on acknowledgement, AUTH
// and DISCONNECT packets. Values below 0x80 indicate success.
type ReasonCode byte

const (
	ReasonSuccess                    ReasonCode = 0x00
	ReasonGrantedQoS1                ReasonCode = 0x01
	ReasonGrantedQoS2                ReasonCode = 0x02
	ReasonDisconnectWithWill         ReasonCode = 0x04
	ReasonNoMatchingSubscribers      ReasonCode = 0x10
	ReasonNoSubscriptionExisted      ReasonCode = 0x11
	ReasonContinueAuth               ReasonCode = 0x18
	ReasonReAuth                     ReasonCode = 0x19
	ReasonUnspecifiedError           ReasonCode = 0x80
	ReasonMalformedPacket            ReasonCode = 0x81
	ReasonProtocolError              ReasonCode = 0x82
	ReasonImplSpecificError          ReasonCode = 0x83
	ReasonUnsupportedProtocolVersion ReasonCode = 0x84
	ReasonClientIDNotValid           ReasonCode = 0x85
	ReasonBadUserNameOrPassword      ReasonCode = 0x86
	ReasonNotAuthorized              ReasonCode = 0x87
	ReasonServerUnavailable          ReasonCode = 0x88
	ReasonServerBusy                 ReasonCode = 0x89
	ReasonBanned                     ReasonCode = 0x8A
	ReasonServerShuttingDown         ReasonCode = 0x8B
	ReasonBadAuthMethod              ReasonCode = 0x8C
	ReasonKeepAliveTimeout           ReasonCode = 0x8D
	ReasonSessionTakenOver           ReasonCode = 0x8E
	ReasonTopicFilterInvalid         ReasonCode = 0x8F
	ReasonTopicNameInvalid           ReasonCode = 0x90
	ReasonPacketIDInUse              ReasonCode = 0x91
	ReasonPacketIDNotFound           ReasonCode = 0x92
	ReasonReceiveMaxExceeded         ReasonCode = 0x93
	ReasonTopicAliasInvalid          ReasonCode = 0x94
	ReasonPacketTooLarge             ReasonCode = 0x95
	ReasonMessageRateTooHigh         ReasonCode = 0x96
	ReasonQuotaExceeded              ReasonCode = 0x97
	ReasonAdminAction                ReasonCode = 0x98
	ReasonPayloadFormatInvalid       ReasonCode = 0x99
	ReasonRetainNotSupported         ReasonCode = 0x9A
	ReasonQoSNotSupported            ReasonCode = 0x9B
	ReasonUseAnotherServer           ReasonCode = 0x9C
	ReasonServerMoved                ReasonCode = 0x9D
	ReasonSharedSubsNotSupported     ReasonCode = 0x9E
	ReasonConnectionRateExceeded     ReasonCode = 0x9F
	ReasonMaxConnectTime             ReasonCode = 0xA0
	ReasonSubIDsNotSupported         ReasonCode = 0xA1
	ReasonWildcardSubsNotSupported   ReasonCode = 0xA2
)

var reasonCodeStrings = map[ReasonCode]string{
	ReasonSuccess:                    "Success",
	ReasonGrantedQoS1:                "Granted QoS 1",
	ReasonGrantedQoS2:                "Granted QoS 2",
	ReasonDisconnectWithWill:         "Disconnect with Will Message",
	ReasonNoMatchingSubscribers:      "No matching subscribers",
	ReasonNoSubscriptionExisted:      "No subscription existed",
	ReasonContinueAuth:               "Continue authentication",
	ReasonReAuth:                     "Re-authenticate",
	ReasonUnspecifiedError:           "Unspecified error",
	ReasonMalformedPacket:            "Malformed Packet",
	ReasonProtocolError:              "Protocol Error",
	ReasonImplSpecificError:          "Implementation specific error",
	ReasonUnsupportedProtocolVersion: "Unsupported Protocol Version",
	ReasonClientIDNotValid:           "Client Identifier not valid",
	ReasonBadUserNameOrPassword:      "Bad User Name or Password",
	ReasonNotAuthorized:              "Not authorized",
	ReasonServerUnavailable:          "Server unavailable",
	ReasonServerBusy:                 "Server busy",
	ReasonBanned:                     "Banned",
	ReasonServerShuttingDown:         "Server shutting down",
	ReasonBadAuthMethod:              "Bad authentication method",
	ReasonKeepAliveTimeout:           "Keep Alive timeout",
	ReasonSessionTakenOver:           "Session taken over",
	ReasonTopicFilterInvalid:         "Topic Filter invalid",
	ReasonTopicNameInvalid:           "Topic Name invalid",
	ReasonPacketIDInUse:              "Packet Identifier in use",
	ReasonPacketIDNotFound:           "Packet Identifier not found",
	ReasonReceiveMaxExceeded:         "Receive Maximum exceeded",
	ReasonTopicAliasInvalid:          "Topic Alias invalid",
	ReasonPacketTooLarge:             "Packet too large",
	ReasonMessageRateTooHigh:         "Message rate too high",
	ReasonQuotaExceeded:              "Quota exceeded",
	ReasonAdminAction:                "Administrative action",
	ReasonPayloadFormatInvalid:       "Payload format invalid",
	ReasonRetainNotSupported:         "Retain not supported",
	ReasonQoSNotSupported:            "QoS not supported",
	ReasonUseAnotherServer:           "Use another server",
	ReasonServerMoved:                "Server moved",
	ReasonSharedSubsNotSupported:     "Shared Subscriptions not supported",
	ReasonConnectionRateExceeded:     "Connection rate exceeded",
	ReasonMaxConnectTime:             "Maximum connect time",
	ReasonSubIDsNotSupported:         "Subscription Identifiers not supported",
	ReasonWildcardSubsNotSupported:   "Wildcard Subscriptions not supported",
}

// String returns the specification name of the reason code.
func (r ReasonCode) String() string {
	if s, ok := reasonCodeStrings[r]; ok {
		return s
	}
	return "Unknown"
}

// IsError reports whether the code signals a failure.
func (r ReasonCode) IsError() bool {
	return r >= 0x80
}

// ConnectReturnCode is the v3.1.1 CONNACK return code. v3.1.1 predates
// reason codes; CONNACK is the only packet that carries an outcome byte.
type ConnectReturnCode byte

const (
	ConnectAccepted ConnectReturnCode = 0x00
	// ConnectRefusedVersion: unacceptable protocol version.
	ConnectRefusedVersion ConnectReturnCode = 0x01
	// ConnectRefusedIdentifier: client identifier rejected.
	ConnectRefusedIdentifier ConnectReturnCode = 0x02
	// ConnectRefusedUnavailable: server unavailable.
	ConnectRefusedUnavailable ConnectReturnCode = 0x03
	// ConnectRefusedCredentials: bad user name or password.
	ConnectRefusedCredentials ConnectReturnCode = 0x04
	// ConnectRefusedNotAuthorized: not authorized.
	ConnectRefusedNotAuthorized ConnectReturnCode = 0x05
)

// V3ReturnCode downgrades a v5 CONNACK reason code to the nearest v3.1.1
// return code when the engine speaks 3.1.1 on the wire.
func (r ReasonCode) V3ReturnCode() ConnectReturnCode {
	switch r {
	case ReasonSuccess:
		return ConnectAccepted
	case ReasonUnsupportedProtocolVersion:
		return ConnectRefusedVersion
	case ReasonClientIDNotValid:
		return ConnectRefusedIdentifier
	case ReasonServerUnavailable, ReasonServerBusy, ReasonServerShuttingDown:
		return ConnectRefusedUnavailable
	case ReasonBadUserNameOrPassword:
		return ConnectRefusedCredentials
	case ReasonNotAuthorized, ReasonBanned:
		return ConnectRefusedNotAuthorized
	default:
		return ConnectRefusedUnavailable
	}
}

// ReasonCodeValue upgrades a v3.1.1 return code to its v5 equivalent.
func (c ConnectReturnCode) ReasonCodeValue() ReasonCode {
	switch c {
	case ConnectAccepted:
		return ReasonSuccess
	case ConnectRefusedVersion:
		return ReasonUnsupportedProtocolVersion
	case ConnectRefusedIdentifier:
		return ReasonClientIDNotValid
	case ConnectRefusedUnavailable:
		return ReasonServerUnavailable
	case ConnectRefusedCredentials:
		return ReasonBadUserNameOrPassword
	case ConnectRefusedNotAuthorized:
		return ReasonNotAuthorized
	default:
		return ReasonUnspecifiedError
	}
}

// validAckReasons lists the reason codes each ack packet type may carry.
var validAckReasons = map[PacketType]map[ReasonCode]bool{
	PacketPUBACK: {
		ReasonSuccess: true, ReasonNoMatchingSubscribers: true,
		ReasonUnspecifiedError: true, ReasonImplSpecificError: true,
		ReasonNotAuthorized: true, ReasonTopicNameInvalid: true,
		ReasonPacketIDInUse: true, ReasonQuotaExceeded: true,
		ReasonPayloadFormatInvalid: true,
	},
	PacketPUBREC: {
		ReasonSuccess: true, ReasonNoMatchingSubscribers: true,
		ReasonUnspecifiedError: true, ReasonImplSpecificError: true,
		ReasonNotAuthorized: true, ReasonTopicNameInvalid: true,
		ReasonPacketIDInUse: true, ReasonQuotaExceeded: true,
		ReasonPayloadFormatInvalid: true,
	},
	PacketPUBREL: {
		ReasonSuccess: true, ReasonPacketIDNotFound: true,
	},
	PacketPUBCOMP: {
		ReasonSuccess: true, ReasonPacketIDNotFound: true,
	},
	PacketAUTH: {
		ReasonSuccess: true, ReasonContinueAuth: true, ReasonReAuth: true,
	},
}

// ValidForAck reports whether the reason code is legal on the given ack
// packet type.
func (r ReasonCode) ValidForAck(t PacketType) bool {
	codes, ok := validAckReasons[t]
	if !ok {
		return false
	}
	return codes[r]
}
