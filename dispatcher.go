package mqtt

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Router receives inbound application messages once the delivery engine
// has settled their QoS fate: QoS 2 duplicates never reach it.
type Router interface {
	// Route delivers one message. An error tears the connection down.
	Route(ctx context.Context, clientID string, msg *Message) error
}

// RouterFunc is a function adapter for Router.
type RouterFunc func(ctx context.Context, clientID string, msg *Message) error

// Route implements Router.
func (f RouterFunc) Route(ctx context.Context, clientID string, msg *Message) error {
	return f(ctx, clientID, msg)
}

// PublishToken reports the completion of an acknowledged operation:
// a QoS > 0 publish, a subscribe or an unsubscribe. QoS 0 publishes
// complete immediately.
type PublishToken struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPublishToken() *PublishToken {
	return &PublishToken{done: make(chan struct{})}
}

func (t *PublishToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed when the operation's acknowledgement chain finishes.
func (t *PublishToken) Done() <-chan struct{} { return t.done }

// Err returns the outcome after Done is closed. A connection that closes
// with flows outstanding completes them with ErrPublishCancelled.
func (t *PublishToken) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until completion or context cancellation.
func (t *PublishToken) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher runs the protocol engine over one connection: it feeds the
// incremental decoder, walks packets through the session state machine
// and the QoS delivery engine, writes replies, and keeps the keep-alive
// contract. All exported methods are safe for concurrent use.
type Dispatcher struct {
	conn    Conn
	session *Session
	decoder *Decoder
	opts    *Options
	logger  Logger
	metrics *EngineMetrics
	router  Router
	limiter *rate.Limiter

	aliasIn  *TopicAliasManager
	aliasOut *TopicAliasManager

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[uint16]*PublishToken
	authState any
	heldAck   *ConnackPacket

	closeOnce sync.Once
	closedCh  chan struct{}
	closeErr  error
}

// NewDispatcher wraps a connection. The role decides which side of the
// CONNECT handshake this end plays.
func NewDispatcher(conn Conn, role Role, router Router, opts *Options) *Dispatcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.normalize()

	session := NewSession(role, opts.Version, opts.ReceiveMaximum)
	logger := opts.Logger.WithFields(LogFields{
		LogFieldRemoteAddr: conn.RemoteAddr().String(),
	})

	return &Dispatcher{
		conn:     conn,
		session:  session,
		decoder:  NewDecoder(opts.Version, opts.MaxPacketSize),
		opts:     opts,
		logger:   logger,
		metrics:  NewEngineMetrics(opts.Metrics),
		router:   router,
		limiter:  opts.publishLimiter(),
		aliasIn:  NewTopicAliasManager(opts.TopicAliasMaximum),
		aliasOut: NewTopicAliasManager(0),
		pending:  make(map[uint16]*PublishToken),
		closedCh: make(chan struct{}),
	}
}

// Session exposes the protocol state machine, mostly for inspection.
func (d *Dispatcher) Session() *Session { return d.session }

// Run drives the connection until it closes or ctx is cancelled. For
// clients, call Connect first.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.metrics.ConnectionOpened()
	defer d.metrics.ConnectionClosed()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.readLoop(ctx) })
	g.Go(func() error { return d.keepAliveLoop(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			d.close(ctx.Err())
		case <-d.closedCh:
		}
		return nil
	})

	err := g.Wait()
	d.close(err)
	d.persistSession()
	if d.closeErr != nil && !errors.Is(d.closeErr, io.EOF) {
		return d.closeErr
	}
	return nil
}

// Connect sends CONNECT on a client connection and prepares the session.
// Stored state is loaded for resumption when clean start is off.
func (d *Dispatcher) Connect(ctx context.Context) error {
	pkt := &ConnectPacket{
		ClientID:   d.opts.ClientID,
		CleanStart: d.opts.CleanStart,
		KeepAlive:  d.opts.KeepAlive,
	}
	if d.opts.Version.HasProperties() {
		if d.opts.SessionExpiry > 0 {
			pkt.Props.Set(PropSessionExpiryInterval, d.opts.SessionExpiry)
		}
		if d.opts.ReceiveMaximum > 0 && d.opts.ReceiveMaximum != 65535 {
			pkt.Props.Set(PropReceiveMaximum, d.opts.ReceiveMaximum)
		}
		if d.opts.TopicAliasMaximum > 0 {
			pkt.Props.Set(PropTopicAliasMaximum, d.opts.TopicAliasMaximum)
		}
	}

	if !d.opts.CleanStart && d.opts.ClientID != "" {
		stored, err := d.opts.SessionStore.Load(ctx, d.opts.ClientID)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
		if stored != nil {
			d.session.Restore(stored)
		}
	}

	if err := d.session.PrepareConnect(pkt); err != nil {
		return err
	}
	return d.writePacket(pkt)
}

// Publish sends a message. QoS 0 returns a completed token; QoS > 0
// tokens complete when the acknowledgement chain does.
// ErrPacketIDExhausted and ErrQuotaExceeded are backpressure: retry after
// an in-flight message completes.
func (d *Dispatcher) Publish(ctx context.Context, msg *Message) (*PublishToken, error) {
	pkt, err := d.session.NextPublish(msg)
	if err != nil {
		return nil, err
	}

	token := newPublishToken()
	if msg.QoS == 0 {
		token.complete(nil)
	} else {
		d.mu.Lock()
		d.pending[pkt.ID] = token
		d.mu.Unlock()
	}

	if err := d.writePacket(pkt); err != nil {
		d.forgetToken(pkt.ID, err)
		return nil, err
	}
	return token, nil
}

// Subscribe sends SUBSCRIBE and returns a token that completes on SUBACK.
func (d *Dispatcher) Subscribe(ctx context.Context, subs ...Subscription) (*PublishToken, error) {
	id, err := d.session.ids.Allocate()
	if err != nil {
		return nil, err
	}
	pkt := &SubscribePacket{ID: id, Subscriptions: subs}

	token := newPublishToken()
	d.mu.Lock()
	d.pending[id] = token
	d.mu.Unlock()

	if err := d.writePacket(pkt); err != nil {
		d.forgetToken(id, err)
		d.session.ids.Release(id)
		return nil, err
	}
	for _, sub := range subs {
		d.session.AddSubscription(sub)
	}
	return token, nil
}

// Unsubscribe sends UNSUBSCRIBE and returns a token that completes on
// UNSUBACK.
func (d *Dispatcher) Unsubscribe(ctx context.Context, filters ...string) (*PublishToken, error) {
	id, err := d.session.ids.Allocate()
	if err != nil {
		return nil, err
	}
	pkt := &UnsubscribePacket{ID: id, TopicFilters: filters}

	token := newPublishToken()
	d.mu.Lock()
	d.pending[id] = token
	d.mu.Unlock()

	if err := d.writePacket(pkt); err != nil {
		d.forgetToken(id, err)
		d.session.ids.Release(id)
		return nil, err
	}
	for _, filter := range filters {
		d.session.RemoveSubscription(filter)
	}
	return token, nil
}

// Disconnect sends DISCONNECT and closes the connection cleanly.
func (d *Dispatcher) Disconnect(reason ReasonCode) error {
	pkt, err := d.session.Disconnect(reason)
	if err != nil {
		return err
	}
	if err := d.writePacket(pkt); err != nil {
		return err
	}
	d.close(nil)
	return nil
}

// Close tears the connection down without a DISCONNECT.
func (d *Dispatcher) Close() error {
	d.close(nil)
	return nil
}

// Done is closed when the dispatcher stops.
func (d *Dispatcher) Done() <-chan struct{} { return d.closedCh }

func (d *Dispatcher) close(err error) {
	d.closeOnce.Do(func() {
		d.closeErr = err
		d.session.Close()
		d.conn.Close()
		close(d.closedCh)

		// Outstanding flows will resume on the next connection, but
		// their waiters must not hang.
		d.mu.Lock()
		for id, token := range d.pending {
			token.complete(ErrPublishCancelled)
			delete(d.pending, id)
		}
		d.mu.Unlock()
	})
}

// persistSession saves or deletes stored state after the connection ends.
func (d *Dispatcher) persistSession() {
	clientID := d.session.ClientID()
	if clientID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.session.ExpiryInterval() == 0 {
		if err := d.opts.SessionStore.Delete(ctx, clientID); err != nil {
			d.logger.Warn("session delete failed", LogFields{LogFieldError: err.Error()})
		}
		return
	}
	if err := d.opts.SessionStore.Save(ctx, d.session.Snapshot()); err != nil {
		d.logger.Warn("session save failed", LogFields{LogFieldError: err.Error()})
	}
}

func (d *Dispatcher) writePacket(pkt Packet) error {
	d.writeMu.Lock()
	n, err := WritePacket(d.conn, pkt, d.session.Version(), d.opts.MaxPacketSize)
	d.writeMu.Unlock()
	if err != nil {
		return err
	}
	d.session.KeepAlive().TouchSent()
	d.metrics.PacketSent(pkt.Type(), n)
	return nil
}

func (d *Dispatcher) readLoop(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		n, err := d.conn.Read(buf)
		if n > 0 {
			d.decoder.Push(buf[:n])
			d.session.KeepAlive().TouchReceived()
			if err := d.drainDecoder(ctx); err != nil {
				d.sendErrorDisconnect(err)
				return err
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || d.session.Closed() {
				return io.EOF
			}
			return err
		}
	}
}

func (d *Dispatcher) drainDecoder(ctx context.Context) error {
	for {
		pkt, err := d.decoder.Next()
		if errors.Is(err, ErrNeedMoreData) {
			return nil
		}
		if err != nil {
			d.metrics.ProtocolError()
			return err
		}
		d.metrics.PacketReceived(pkt.Type(), 0)
		if err := d.handlePacket(ctx, pkt); err != nil {
			if IsMalformed(err) || IsProtocolViolation(err) {
				d.metrics.ProtocolError()
			}
			return err
		}
	}
}

// sendErrorDisconnect tells the peer why a fatal error is closing the
// connection. While a server still awaits CONNECT, the answer is a
// failure CONNACK; on a connected v5 session it is a DISCONNECT with a
// reason code. 3.1.1 has no way to say why after the handshake, so it
// just closes.
func (d *Dispatcher) sendErrorDisconnect(err error) {
	if d.session.Role() == RoleServer && d.session.Phase() == PhaseAwaitingConnect {
		_ = d.writePacket(&ConnackPacket{ReasonCode: connectFailureReason(err)})
		return
	}
	if !d.session.Version().HasProperties() || !d.session.Connected() {
		return
	}
	reason := DisconnectReason(err)
	_ = d.writePacket(&DisconnectPacket{ReasonCode: reason})
}

// connectFailureReason maps a CONNECT decode or validation error to the
// CONNACK reason code that refuses the connection.
func connectFailureReason(err error) ReasonCode {
	if errors.Is(err, ErrUnsupportedVersion) {
		return ReasonUnsupportedProtocolVersion
	}
	return DisconnectReason(err)
}

func (d *Dispatcher) keepAliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.closedCh:
			return nil
		case <-ticker.C:
		}

		ka := d.session.KeepAlive()
		if ka.Expired() {
			d.logger.Warn("keep-alive expired", LogFields{
				LogFieldClientID: d.session.ClientID(),
			})
			d.close(ErrKeepAliveTimeout)
			return ErrKeepAliveTimeout
		}
		if d.session.Role() == RoleClient && d.session.Connected() && ka.PingDue() {
			if err := d.writePacket(&PingreqPacket{}); err != nil {
				return err
			}
		}
		if d.session.Connected() && d.opts.RetryInterval > 0 {
			if err := d.retransmitStale(); err != nil {
				return err
			}
		}
	}
}

// retransmitStale resends outbound QoS flows that have gone unanswered
// for longer than the retry interval.
func (d *Dispatcher) retransmitStale() error {
	stale := d.session.InFlight().StaleRetransmit(d.session.Version(), d.opts.RetryInterval)
	for _, pkt := range stale {
		if err := d.writePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handlePacket(ctx context.Context, pkt Packet) error {
	switch p := pkt.(type) {
	case *ConnectPacket:
		return d.handleConnect(ctx, p)
	case *ConnackPacket:
		return d.handleConnack(p)
	case *PublishPacket:
		return d.handlePublish(ctx, p)
	case *PubackPacket:
		return d.handlePuback(p)
	case *PubrecPacket:
		return d.handlePubrec(p)
	case *PubrelPacket:
		return d.handlePubrel(p)
	case *PubcompPacket:
		return d.handlePubcomp(p)
	case *SubscribePacket:
		return d.handleSubscribe(ctx, p)
	case *SubackPacket:
		return d.completePending(p.ID, nil)
	case *UnsubscribePacket:
		return d.handleUnsubscribe(ctx, p)
	case *UnsubackPacket:
		return d.completePending(p.ID, nil)
	case *PingreqPacket:
		return d.writePacket(&PingrespPacket{})
	case *PingrespPacket:
		return nil
	case *DisconnectPacket:
		if err := d.session.HandleDisconnect(p); err != nil {
			return err
		}
		d.close(nil)
		return nil
	case *AuthPacket:
		return d.handleAuth(ctx, p)
	default:
		return ErrUnknownPacketType
	}
}

func (d *Dispatcher) handleConnect(ctx context.Context, pkt *ConnectPacket) error {
	// The decoder adopted the client's version while parsing CONNECT.
	v := d.decoder.Version()
	d.session.AdoptVersion(v)

	if d.opts.Auth != nil {
		result, err := d.opts.Auth.Authenticate(ctx, &AuthContext{
			ClientID:   pkt.ClientID,
			Username:   pkt.Username,
			Password:   pkt.Password,
			RemoteAddr: d.conn.RemoteAddr(),
		})
		if err != nil {
			return err
		}
		if !result.Success {
			ack := &ConnackPacket{ReasonCode: result.ReasonCode}
			_ = d.writePacket(ack)
			d.close(nil)
			return nil
		}
	}

	var stored *SessionState
	if !pkt.CleanStart && pkt.ClientID != "" {
		var err error
		stored, err = d.opts.SessionStore.Load(ctx, pkt.ClientID)
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	if pkt.CleanStart && pkt.ClientID != "" {
		if err := d.opts.SessionStore.Delete(ctx, pkt.ClientID); err != nil {
			return err
		}
	}

	connack, err := d.session.HandleConnect(pkt, stored)
	if err != nil {
		return err
	}

	// A CONNECT carrying an authentication method starts an AUTH
	// exchange; CONNACK waits for it to finish.
	if v.HasProperties() && d.opts.EnhancedAuth != nil {
		if method := pkt.Props.GetString(PropAuthenticationMethod); method != "" {
			return d.startEnhancedAuth(ctx, pkt, method, connack)
		}
	}

	d.logger.Info("client connected", LogFields{
		LogFieldClientID: d.session.ClientID(),
		LogFieldVersion:  v.String(),
	})
	return d.finishConnect(connack)
}

func (d *Dispatcher) finishConnect(connack *ConnackPacket) error {
	if err := d.writePacket(connack); err != nil {
		return err
	}
	if connack.SessionPresent {
		return d.retransmitPending()
	}
	return nil
}

func (d *Dispatcher) startEnhancedAuth(ctx context.Context, pkt *ConnectPacket, method string, connack *ConnackPacket) error {
	if !d.opts.EnhancedAuth.SupportsMethod(method) {
		_ = d.writePacket(&ConnackPacket{ReasonCode: ReasonBadAuthMethod})
		d.close(nil)
		return nil
	}
	result, err := d.opts.EnhancedAuth.AuthStart(ctx, &EnhancedAuthContext{
		ClientID:   pkt.ClientID,
		AuthMethod: method,
		AuthData:   pkt.Props.GetBinary(PropAuthenticationData),
		RemoteAddr: d.conn.RemoteAddr(),
	})
	if err != nil {
		return err
	}
	return d.continueEnhancedAuth(result, method, connack)
}

func (d *Dispatcher) continueEnhancedAuth(result *EnhancedAuthResult, method string, connack *ConnackPacket) error {
	if result.Continue {
		d.mu.Lock()
		d.authState = result.State
		d.heldAck = connack
		d.mu.Unlock()

		auth := &AuthPacket{ReasonCode: ReasonContinueAuth}
		auth.Props.Set(PropAuthenticationMethod, method)
		if len(result.AuthData) > 0 {
			auth.Props.Set(PropAuthenticationData, result.AuthData)
		}
		return d.writePacket(auth)
	}
	if !result.Success {
		_ = d.writePacket(&ConnackPacket{ReasonCode: ReasonNotAuthorized})
		d.close(nil)
		return nil
	}
	if len(result.AuthData) > 0 {
		connack.Props.Set(PropAuthenticationData, result.AuthData)
		connack.Props.Set(PropAuthenticationMethod, method)
	}
	return d.finishConnect(connack)
}

func (d *Dispatcher) handleAuth(ctx context.Context, pkt *AuthPacket) error {
	if d.opts.EnhancedAuth == nil {
		return newViolation(ReasonProtocolError, "unexpected AUTH")
	}
	method := pkt.Props.GetString(PropAuthenticationMethod)

	d.mu.Lock()
	state := d.authState
	connack := d.heldAck
	d.mu.Unlock()

	result, err := d.opts.EnhancedAuth.AuthContinue(ctx, &EnhancedAuthContext{
		ClientID:   d.session.ClientID(),
		AuthMethod: method,
		AuthData:   pkt.Props.GetBinary(PropAuthenticationData),
		ReasonCode: pkt.ReasonCode,
		RemoteAddr: d.conn.RemoteAddr(),
		State:      state,
	})
	if err != nil {
		return err
	}
	if connack == nil {
		// Re-authentication on a live connection answers with AUTH.
		if result.Success {
			auth := &AuthPacket{ReasonCode: ReasonSuccess}
			auth.Props.Set(PropAuthenticationMethod, method)
			return d.writePacket(auth)
		}
		return newViolation(ReasonNotAuthorized, "re-authentication failed")
	}
	return d.continueEnhancedAuth(result, method, connack)
}

func (d *Dispatcher) handleConnack(pkt *ConnackPacket) error {
	sessionPresent, err := d.session.HandleConnack(pkt)
	if err != nil {
		return err
	}
	d.logger.Info("connected", LogFields{
		LogFieldClientID: d.session.ClientID(),
		LogFieldVersion:  d.session.Version().String(),
	})
	if sessionPresent {
		return d.retransmitPending()
	}
	return nil
}

func (d *Dispatcher) retransmitPending() error {
	for _, pkt := range d.session.PendingRetransmit() {
		if err := d.writePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handlePublish(ctx context.Context, pkt *PublishPacket) error {
	if !d.session.Connected() {
		return newViolation(ReasonProtocolError, "PUBLISH before the handshake finished")
	}

	topic := pkt.TopicName
	if d.session.Version().HasProperties() {
		alias := pkt.Props.GetUint16(PropTopicAlias)
		if alias > 0 || topic == "" {
			resolved, err := d.aliasIn.Resolve(topic, alias)
			if err != nil {
				return err
			}
			topic = resolved
		}
	}

	deliver, err := d.session.InFlight().HandlePublish(pkt)
	if err != nil {
		return err
	}

	if deliver && d.router != nil {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		msg := pkt.Message()
		msg.Topic = topic
		if err := d.router.Route(ctx, d.session.ClientID(), msg); err != nil {
			return err
		}
	}

	switch pkt.QoS {
	case 0:
		return nil
	case 1:
		if err := d.writePacket(&PubackPacket{ID: pkt.ID}); err != nil {
			return err
		}
		// The PUBACK is on the wire; the flow no longer holds a window
		// slot.
		d.session.InFlight().CompleteInbound(pkt.ID)
		return nil
	default:
		return d.writePacket(&PubrecPacket{ID: pkt.ID})
	}
}

func (d *Dispatcher) handlePuback(pkt *PubackPacket) error {
	if err := d.session.CompleteQoS1(pkt.ID); err != nil {
		return newViolation(ReasonProtocolError, "PUBACK for unknown packet ID")
	}
	d.metrics.InFlightChanged(d.session.InFlight().OutboundCount())
	return d.completePending(pkt.ID, ackError(pkt.ReasonCode))
}

func (d *Dispatcher) handlePubrec(pkt *PubrecPacket) error {
	if pkt.ReasonCode.IsError() {
		// The receiver refused the message; the flow ends here.
		if err := d.session.AdvanceQoS2(pkt.ID); err == nil {
			_ = d.session.CompleteQoS2(pkt.ID)
		}
		return d.completePending(pkt.ID, ackError(pkt.ReasonCode))
	}
	if err := d.session.AdvanceQoS2(pkt.ID); err != nil {
		return newViolation(ReasonProtocolError, "PUBREC for unknown packet ID")
	}
	return d.writePacket(&PubrelPacket{ID: pkt.ID})
}

func (d *Dispatcher) handlePubrel(pkt *PubrelPacket) error {
	d.session.InFlight().HandlePubrel(pkt.ID)
	return d.writePacket(&PubcompPacket{ID: pkt.ID})
}

func (d *Dispatcher) handlePubcomp(pkt *PubcompPacket) error {
	if err := d.session.CompleteQoS2(pkt.ID); err != nil {
		return newViolation(ReasonProtocolError, "PUBCOMP for unknown packet ID")
	}
	d.metrics.InFlightChanged(d.session.InFlight().OutboundCount())
	return d.completePending(pkt.ID, nil)
}

func (d *Dispatcher) handleSubscribe(ctx context.Context, pkt *SubscribePacket) error {
	if d.session.Role() != RoleServer {
		return newViolation(ReasonProtocolError, "SUBSCRIBE sent to a client")
	}
	ack := &SubackPacket{ID: pkt.ID}
	for _, sub := range pkt.Subscriptions {
		code := ReasonCode(sub.QoS)
		if d.opts.Subscriptions != nil {
			code = d.opts.Subscriptions.GrantSubscribe(ctx, d.session.ClientID(), sub)
		}
		if !code.IsError() {
			granted := sub
			// The grant never exceeds the requested QoS.
			if byte(code) < granted.QoS {
				granted.QoS = byte(code)
			}
			code = ReasonCode(granted.QoS)
			d.session.AddSubscription(granted)
		}
		ack.ReasonCodes = append(ack.ReasonCodes, code)
	}
	return d.writePacket(ack)
}

func (d *Dispatcher) handleUnsubscribe(ctx context.Context, pkt *UnsubscribePacket) error {
	if d.session.Role() != RoleServer {
		return newViolation(ReasonProtocolError, "UNSUBSCRIBE sent to a client")
	}
	ack := &UnsubackPacket{ID: pkt.ID}
	withCodes := d.session.Version().HasProperties()
	for _, filter := range pkt.TopicFilters {
		if d.opts.Subscriptions != nil {
			if code := d.opts.Subscriptions.GrantUnsubscribe(ctx, d.session.ClientID(), filter); code.IsError() {
				// Refused: the subscription stays.
				if withCodes {
					ack.ReasonCodes = append(ack.ReasonCodes, code)
				}
				continue
			}
		}
		existed := d.session.RemoveSubscription(filter)
		if !withCodes {
			continue
		}
		if existed {
			ack.ReasonCodes = append(ack.ReasonCodes, ReasonSuccess)
		} else {
			ack.ReasonCodes = append(ack.ReasonCodes, ReasonNoSubscriptionExisted)
		}
	}
	return d.writePacket(ack)
}

func (d *Dispatcher) completePending(id uint16, err error) error {
	d.mu.Lock()
	token, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if ok {
		token.complete(err)
	}
	return nil
}

func (d *Dispatcher) forgetToken(id uint16, err error) {
	d.mu.Lock()
	token, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if ok {
		token.complete(err)
	}
}

// ackError converts an acknowledgement reason code to an error, nil for
// success codes.
func ackError(code ReasonCode) error {
	if !code.IsError() {
		return nil
	}
	return &ProtocolViolationError{Reason: code, Detail: "publish rejected"}
}
