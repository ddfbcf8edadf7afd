package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("mqtt: session not found")
	ErrSessionExists   = errors.New("mqtt: session already exists")
	ErrNotConnected    = errors.New("mqtt: session is not connected")
)

// Role says which end of the connection a session sits on. The server
// waits for CONNECT; the client sends it and waits for CONNACK.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Phase is the lifecycle position of a session.
type Phase int

const (
	PhaseAwaitingConnect Phase = iota
	PhaseAwaitingConnack
	PhaseConnected
	PhaseDisconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingConnect:
		return "awaiting-connect"
	case PhaseAwaitingConnack:
		return "awaiting-connack"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionState is the persistable part of a session: what survives a
// disconnect and lets QoS flows resume on the next connection.
type SessionState struct {
	ClientID       string
	Version        Version
	ExpiryInterval uint32
	Subscriptions  []Subscription
	Outbound       []InFlightRecord
	Inbound        []InFlightRecord
	UpdatedAt      time.Time
}

// Expired reports whether the state has outlived its expiry interval. An
// interval of 0 expires with the connection on 5.0; 3.1.1 sessions use
// the store's retention policy, expressed here as the max uint32.
func (s *SessionState) Expired(now time.Time) bool {
	if s.ExpiryInterval == 0xFFFFFFFF {
		return false
	}
	deadline := s.UpdatedAt.Add(time.Duration(s.ExpiryInterval) * time.Second)
	return now.After(deadline)
}

// SessionStore persists session state across connections.
type SessionStore interface {
	// Save creates or replaces the state for its client ID.
	Save(ctx context.Context, state *SessionState) error

	// Load retrieves state by client ID, ErrSessionNotFound when absent.
	Load(ctx context.Context, clientID string) (*SessionState, error)

	// Delete removes state by client ID. Deleting absent state is not an
	// error.
	Delete(ctx context.Context, clientID string) error

	// List returns every stored client ID.
	List(ctx context.Context) ([]string, error)

	// Cleanup removes expired state and returns how many entries went.
	Cleanup(ctx context.Context) (int, error)

	// Close releases the store's resources.
	Close() error
}

// Session is the per-connection protocol state machine. It owns the
// packet ID allocator, the in-flight tracker, the flow-control window and
// the keep-alive tracker, and moves through its phases as CONNECT,
// CONNACK and DISCONNECT packets pass by. It performs no I/O; a
// Dispatcher drives it.
type Session struct {
	mu sync.Mutex

	role    Role
	phase   Phase
	version Version

	clientID       string
	cleanStart     bool
	expiryInterval uint32
	will           *WillMessage
	willFired      bool
	cleanClose     bool

	ids       *PacketIDManager
	inflight  *InFlightTracker
	flow      *FlowController
	keepAlive *KeepAliveTracker
	subs      map[string]Subscription
}

// NewSession creates a session in the phase its role starts from.
// localRecvMax bounds inbound QoS > 0 flows; 0 means the protocol
// default.
func NewSession(role Role, v Version, localRecvMax uint16) *Session {
	phase := PhaseAwaitingConnect
	if role == RoleClient {
		phase = PhaseAwaitingConnack
	}
	ids := NewPacketIDManager()
	return &Session{
		role:      role,
		phase:     phase,
		version:   v,
		ids:       ids,
		inflight:  NewInFlightTracker(ids, localRecvMax),
		flow:      NewFlowController(0),
		keepAlive: NewKeepAliveTracker(0),
		subs:      make(map[string]Subscription),
	}
}

// AdoptVersion switches a server session to the version the client's
// CONNECT declared. It only applies before the connection is negotiated.
func (s *Session) AdoptVersion(v Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseAwaitingConnect {
		s.version = v
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Role returns the session's role.
func (s *Session) Role() Role { return s.role }

// Version returns the protocol version the session speaks.
func (s *Session) Version() Version { return s.version }

// ClientID returns the client identifier, empty until negotiated.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// InFlight exposes the QoS delivery tracker.
func (s *Session) InFlight() *InFlightTracker { return s.inflight }

// Flow exposes the outbound flow-control window.
func (s *Session) Flow() *FlowController { return s.flow }

// KeepAlive exposes the keep-alive tracker.
func (s *Session) KeepAlive() *KeepAliveTracker { return s.keepAlive }

// Will returns the will message, nil when none was negotiated.
func (s *Session) Will() *WillMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.will
}

// ExpiryInterval returns the negotiated session expiry in seconds.
func (s *Session) ExpiryInterval() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiryInterval
}

// HandleConnect processes an inbound CONNECT on a server session and
// returns the CONNACK to send. stored is the previously persisted state
// for the client, nil when there is none; session present is granted only
// when the client asked for resumption and state existed. An empty client
// ID on a clean-start connect gets a generated one, returned to v5
// clients in the assigned-client-identifier property.
func (s *Session) HandleConnect(pkt *ConnectPacket, stored *SessionState) (*ConnackPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleServer {
		return nil, newViolation(ReasonProtocolError, "CONNECT on a client session")
	}
	if s.phase != PhaseAwaitingConnect {
		// A second CONNECT is a protocol error.
		return nil, newViolation(ReasonProtocolError, "duplicate CONNECT")
	}
	if err := pkt.Validate(s.version); err != nil {
		return nil, err
	}

	connack := &ConnackPacket{ReasonCode: ReasonSuccess}

	s.clientID = pkt.ClientID
	assigned := false
	if s.clientID == "" {
		s.clientID = uuid.NewString()
		assigned = true
	}
	s.cleanStart = pkt.CleanStart
	s.will = WillMessageFromConnect(pkt)
	s.keepAlive.SetInterval(pkt.KeepAlive)

	if s.version.HasProperties() {
		s.expiryInterval = pkt.Props.GetUint32(PropSessionExpiryInterval)
		if recvMax := pkt.Props.GetUint16(PropReceiveMaximum); recvMax > 0 {
			s.flow.SetReceiveMaximum(recvMax)
		}
		if assigned {
			connack.Props.Set(PropAssignedClientIdentifier, s.clientID)
		}
	} else {
		// 3.1.1 sessions persist until explicitly cleaned.
		if !pkt.CleanStart {
			s.expiryInterval = 0xFFFFFFFF
		}
	}

	if !pkt.CleanStart && stored != nil {
		connack.SessionPresent = true
		s.restoreLocked(stored)
	}

	s.phase = PhaseConnected
	return connack, nil
}

// HandleConnack processes an inbound CONNACK on a client session. It
// returns the server's session-present decision; an error reason code
// closes the session.
func (s *Session) HandleConnack(pkt *ConnackPacket) (sessionPresent bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleClient {
		return false, newViolation(ReasonProtocolError, "CONNACK on a server session")
	}
	if s.phase != PhaseAwaitingConnack {
		return false, newViolation(ReasonProtocolError, "unexpected CONNACK")
	}
	if err := pkt.Validate(s.version); err != nil {
		return false, err
	}
	if pkt.ReasonCode.IsError() {
		s.phase = PhaseClosed
		return false, &ProtocolViolationError{Reason: pkt.ReasonCode, Detail: "connection refused"}
	}

	if s.version.HasProperties() {
		if id := pkt.Props.GetString(PropAssignedClientIdentifier); id != "" {
			s.clientID = id
		}
		if recvMax := pkt.Props.GetUint16(PropReceiveMaximum); recvMax > 0 {
			s.flow.SetReceiveMaximum(recvMax)
		}
		if pkt.Props.Has(PropServerKeepAlive) {
			s.keepAlive.SetInterval(pkt.Props.GetUint16(PropServerKeepAlive))
		}
	}

	if !pkt.SessionPresent {
		// Server discarded our state; unfinished flows are gone.
		s.inflight.Clear()
		s.flow.Reset()
	}

	s.phase = PhaseConnected
	return pkt.SessionPresent, nil
}

// PrepareConnect fills a client session from the CONNECT packet it is
// about to send and moves nothing: the session is already awaiting
// CONNACK.
func (s *Session) PrepareConnect(pkt *ConnectPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleClient {
		return newViolation(ReasonProtocolError, "PrepareConnect on a server session")
	}
	if err := pkt.Validate(s.version); err != nil {
		return err
	}

	s.clientID = pkt.ClientID
	s.cleanStart = pkt.CleanStart
	s.will = WillMessageFromConnect(pkt)
	s.keepAlive.SetInterval(pkt.KeepAlive)
	if s.version.HasProperties() {
		s.expiryInterval = pkt.Props.GetUint32(PropSessionExpiryInterval)
	} else if !pkt.CleanStart {
		s.expiryInterval = 0xFFFFFFFF
	}
	return nil
}

// Disconnect moves the session into the disconnecting phase and returns
// the DISCONNECT packet to send. A normal disconnect cancels the will.
func (s *Session) Disconnect(reason ReasonCode) (*DisconnectPacket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConnected {
		return nil, ErrNotConnected
	}
	s.phase = PhaseDisconnecting
	if reason == ReasonSuccess {
		s.cleanClose = true
	}
	if !s.version.HasProperties() {
		return &DisconnectPacket{}, nil
	}
	return &DisconnectPacket{ReasonCode: reason}, nil
}

// HandleDisconnect processes an inbound DISCONNECT: the peer is going
// away, cleanly unless the reason says otherwise. Receiving DISCONNECT
// cancels the will.
func (s *Session) HandleDisconnect(pkt *DisconnectPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConnected && s.phase != PhaseDisconnecting {
		return newViolation(ReasonProtocolError, "unexpected DISCONNECT")
	}
	s.cleanClose = true
	s.phase = PhaseClosed
	return nil
}

// Close moves the session to its terminal phase. It is idempotent.
// TakeWill reports whether the will should fire for this close.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseClosed
}

// Closed reports whether the session reached its terminal phase.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseClosed
}

// TakeWill returns the will message if the session ended abnormally and
// the will has not fired yet. Each will fires at most once.
func (s *Session) TakeWill() *WillMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cleanClose || s.willFired || s.will == nil {
		return nil
	}
	s.willFired = true
	return s.will
}

// Connected reports whether the session is in its operating phase.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseConnected
}

// AddSubscription records a granted subscription.
func (s *Session) AddSubscription(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.TopicFilter] = sub
}

// RemoveSubscription drops a subscription by filter, reporting whether it
// existed.
func (s *Session) RemoveSubscription(filter string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[filter]
	delete(s.subs, filter)
	return ok
}

// Subscriptions returns a copy of the granted subscriptions.
func (s *Session) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs
}

// NextPublish builds an outbound PUBLISH for the message: it takes a
// flow-control slot, allocates a packet ID for QoS > 0 and registers the
// flow with the in-flight tracker. ErrQuotaExceeded and
// ErrPacketIDExhausted mean try again after an acknowledgement frees
// capacity.
func (s *Session) NextPublish(msg *Message) (*PublishPacket, error) {
	s.mu.Lock()
	if s.phase != PhaseConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	v := s.version
	s.mu.Unlock()

	pkt := NewPublishPacket(msg, v)
	if msg.QoS == 0 {
		return pkt, nil
	}

	if err := s.flow.Acquire(); err != nil {
		return nil, err
	}
	id, err := s.ids.Allocate()
	if err != nil {
		s.flow.Release()
		return nil, err
	}
	pkt.ID = id
	if err := s.inflight.TrackPublish(id, msg); err != nil {
		s.ids.Release(id)
		s.flow.Release()
		return nil, err
	}
	return pkt, nil
}

// CompleteQoS1 finishes an outbound QoS 1 flow on PUBACK.
func (s *Session) CompleteQoS1(id uint16) error {
	if _, err := s.inflight.HandlePuback(id); err != nil {
		return err
	}
	s.flow.Release()
	return nil
}

// AdvanceQoS2 moves an outbound QoS 2 flow past PUBREC; the caller sends
// PUBREL next.
func (s *Session) AdvanceQoS2(id uint16) error {
	return s.inflight.HandlePubrec(id)
}

// CompleteQoS2 finishes an outbound QoS 2 flow on PUBCOMP.
func (s *Session) CompleteQoS2(id uint16) error {
	if err := s.inflight.HandlePubcomp(id); err != nil {
		return err
	}
	s.flow.Release()
	return nil
}

// Snapshot captures the persistable state for the session store.
func (s *Session) Snapshot() *SessionState {
	s.mu.Lock()
	clientID := s.clientID
	version := s.version
	expiry := s.expiryInterval
	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	outbound, inbound := s.inflight.Snapshot()
	return &SessionState{
		ClientID:       clientID,
		Version:        version,
		ExpiryInterval: expiry,
		Subscriptions:  subs,
		Outbound:       outbound,
		Inbound:        inbound,
		UpdatedAt:      time.Now(),
	}
}

// Restore loads persisted state into a client session before it sends a
// resuming CONNECT.
func (s *Session) Restore(state *SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(state)
}

func (s *Session) restoreLocked(state *SessionState) {
	for _, sub := range state.Subscriptions {
		s.subs[sub.TopicFilter] = sub
	}
	s.inflight.Restore(state.Outbound, state.Inbound)
	// Resumed outbound flows occupy window slots again.
	for range state.Outbound {
		s.flow.TryAcquire()
	}
}

// PendingRetransmit returns the packets a resumed session must resend, in
// packet ID order: unacknowledged PUBLISHes with DUP set and PUBRELs for
// flows past PUBREC.
func (s *Session) PendingRetransmit() []Packet {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()
	return s.inflight.PendingRetransmit(v)
}
