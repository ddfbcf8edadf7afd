// Package mqtt implements the MQTT v3.1.1 and v5.0 protocol engine: the
// binary codec for all control packets, the per-connection session state
// machine with the keep-alive contract, and the QoS 1/2 acknowledgement
// engine with in-flight tracking, receive-maximum flow control and
// redelivery on session resumption.
//
// The package is transport-agnostic. Anything satisfying Conn (an ordered,
// reliable byte stream) can carry a connection; TCP, TLS, WebSocket, QUIC
// and SOCKS-proxied variants are provided. Topic routing, authentication
// policy and message persistence are supplied by the application through
// the Router, DeliveryHandler and SessionStore interfaces.
//
// Both sides of the protocol are supported: a Dispatcher created with
// RoleServer answers CONNECT, one created with RoleClient initiates it.
// Within one connection all protocol state is owned by that connection's
// dispatcher; connections are independent and may run in parallel.
package mqtt
