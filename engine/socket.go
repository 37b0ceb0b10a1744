package engine

import (
	stderrors "errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/errors"
	"github.com/edgewire/engine.io-client/events"
	"github.com/edgewire/engine.io-client/log"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/transports"
	"github.com/edgewire/engine.io-client/types"
	"github.com/edgewire/engine.io-client/utils"
)

var socket_log = log.NewLog("engine-client:socket")

// Socket is the connection engine: it owns the active transport, drives the
// handshake, answers the server heartbeat, coordinates transport upgrades
// and funnels every event of the session through one emitter.
//
// Events: "open", "handshake", "packet", "message"/"data", "ping", "pong",
// "heartbeat", "flush", "drain", "upgrading", "upgrade", "upgradeError",
// "error", "close".
type Socket struct {
	events.EventEmitter

	uri  *url.URL
	opts config.SocketOptionsInterface

	id    string
	mu_id sync.RWMutex

	readyState atomic.Value
	transport  atomic.Pointer[transports.Transport]

	handshake atomic.Pointer[HandshakeData]
	upgrades  []string

	// probing guards against a second upgrade attempt while one is in
	// flight; upgrading pauses outbound traffic during the cutover window
	probing               atomic.Bool
	upgrading             atomic.Bool
	priorWebsocketSuccess atomic.Bool

	writeBuffer *types.Slice[*packet.Packet]
	cleanupFn   *types.Slice[types.Callable]

	// serializes buffer drain + transport hand-off so concurrent flushes
	// cannot reorder packets
	mu_flush sync.Mutex

	pingTimeoutTimer atomic.Pointer[utils.Timer]
	closeGraceTimer  atomic.Pointer[utils.Timer]
}

func MakeSocket() *Socket {
	s := &Socket{
		EventEmitter: events.New(),

		writeBuffer: types.NewSlice[*packet.Packet](),
		cleanupFn:   types.NewSlice[types.Callable](),
	}
	s.readyState.Store("")

	return s
}

// NewSocket creates a client socket for the given endpoint. The socket does
// not connect until Open is called.
func NewSocket(rawURL string, opts config.SocketOptionsInterface) (*Socket, error) {
	s := MakeSocket()

	if err := s.Construct(rawURL, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Socket) Construct(rawURL string, opts config.SocketOptionsInterface) error {
	if opts == nil {
		opts = config.DefaultSocketOptions()
	}

	uri, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	switch uri.Scheme {
	case "http", "https":
	case "ws":
		uri.Scheme = "http"
	case "wss":
		uri.Scheme = "https"
	default:
		return errors.NewTransportError("unsupported scheme "+uri.Scheme, "", nil)
	}
	if uri.Path == "" || uri.Path == "/" {
		uri.Path = opts.Path()
	}

	s.uri = uri
	s.opts = opts

	return nil
}

func (s *Socket) Id() string {
	s.mu_id.RLock()
	defer s.mu_id.RUnlock()

	return s.id
}

func (s *Socket) setId(id string) {
	s.mu_id.Lock()
	defer s.mu_id.Unlock()

	s.id = id
}

func (s *Socket) Transport() transports.Transport {
	if v := s.transport.Load(); v != nil {
		return *v
	}
	return nil
}

func (s *Socket) ReadyState() string {
	if v, ok := s.readyState.Load().(string); ok {
		return v
	}
	return ""
}

func (s *Socket) SetReadyState(state string) {
	socket_log.Debug("readyState updated from %s to %s", s.ReadyState(), state)

	s.readyState.Store(state)
}

func (s *Socket) Upgrading() bool {
	return s.upgrading.Load()
}

// Handshake returns the session descriptor, nil before the open packet
// arrived.
func (s *Socket) Handshake() *HandshakeData {
	return s.handshake.Load()
}

// Opens the connection on the initial transport. Polling goes first since
// it needs no capability negotiation; websocket is dialed directly only
// when polling is disabled or a previous session upgraded instantly.
func (s *Socket) Open() *Socket {
	if state := s.ReadyState(); state != "" && state != "closed" {
		return s
	}

	name := transports.POLLING
	if s.opts.RememberUpgrade() && s.priorWebsocketSuccess.Load() && s.opts.Transports().Has(transports.WEBSOCKET) {
		name = transports.WEBSOCKET
	} else if !s.opts.Transports().Has(transports.POLLING) {
		if !s.opts.Transports().Has(transports.WEBSOCKET) {
			s.Emit("error", errors.NewTransportError("no transports available", "", nil))
			return s
		}
		name = transports.WEBSOCKET
	}

	s.SetReadyState("opening")
	s.setTransport(s.createTransport(name))
	s.Transport().Open()

	return s
}

func (s *Socket) createTransport(name string) transports.Transport {
	socket_log.Debug(`creating transport "%s"`, name)

	transport := transports.Transports()[name].New(s.uri, s.opts)
	transport.SetSid(s.Id())

	return transport
}

// Attaches handlers for the given transport and makes it the active one.
func (s *Socket) setTransport(transport transports.Transport) {
	if current := s.Transport(); current != nil {
		socket_log.Debug(`clearing existing transport "%s"`, current.Name())
		s.clearTransport()
	}

	onDrain := func(...any) { s.onDrain() }
	onPacket := func(packets ...any) {
		if len(packets) > 0 {
			s.onPacket(packets[0].(*packet.Packet))
		}
	}
	onError := func(errs ...any) {
		err, _ := errs[0].(error)

		// a malformed packet only loses that packet; the session and the
		// transport stay up. During the handshake nothing is established
		// yet, so there it still tears the socket down.
		var codecErr *errors.CodecError
		if stderrors.As(err, &codecErr) && s.ReadyState() != "opening" {
			socket_log.Debug("ignoring packet decode failure: %v", err)
			s.Emit("error", err)
			return
		}
		s.onError("transport error", err)
	}
	onClose := func(...any) { s.onClose("transport close", nil) }

	s.transport.Store(&transport)

	transport.On("drain", onDrain)
	transport.On("packet", onPacket)
	transport.On("error", onError)
	transport.Once("close", onClose)

	s.cleanupFn.Push(func() {
		transport.RemoveListener("drain", onDrain)
		transport.RemoveListener("packet", onPacket)
		transport.RemoveListener("error", onError)
		transport.RemoveListener("close", onClose)
	})
}

// Clears listeners associated with the current transport.
func (s *Socket) clearTransport() {
	s.cleanupFn.Range(func(cleanup types.Callable, _ int) bool {
		cleanup()
		return true
	})
	s.cleanupFn.Clear()

	if transport := s.Transport(); transport != nil {
		// silence errors of a transport we no longer care about
		transport.On("error", func(...any) {
			socket_log.Debug("error triggered by discarded transport")
		})
	}
}

// Called upon transport packet.
func (s *Socket) onPacket(data *packet.Packet) {
	state := s.ReadyState()
	if state != "opening" && state != "open" {
		socket_log.Debug("packet received with socket readyState %q", state)
		return
	}

	socket_log.Debug(`socket receive: type "%s"`, data.Type)
	s.Emit("packet", data)

	// incoming data is a good sign of the other side's liveness
	s.resetPingTimeout()

	if state == "opening" && data.Type != packet.OPEN {
		// the first packet of a session must be the handshake
		s.onError("handshake error", errors.NewHandshakeError("expected open packet, got "+string(data.Type), nil))
		return
	}

	switch data.Type {
	case packet.OPEN:
		handshake, err := parseHandshake(data.Data)
		if err != nil {
			s.onError("handshake error", err)
			return
		}
		s.onHandshake(handshake)
	case packet.PING:
		s.Emit("ping")
		s.sendPacket(packet.PONG, nil, nil)
		s.Emit("pong")
		s.Emit("heartbeat")
	case packet.CLOSE:
		s.onClose("transport close", errors.NewTransportError("close packet received from server", "", nil))
	case packet.ERROR:
		s.onError("server error", errors.NewTransportError("server error", "", nil))
	case packet.MESSAGE:
		s.Emit("data", data.Data)
		s.Emit("message", data.Data)
	}
}

// Called upon handshake completion.
func (s *Socket) onHandshake(data *HandshakeData) {
	socket_log.Debug("handshake %s", data.Sid)

	s.Emit("handshake", data)
	s.handshake.Store(data)
	s.setId(data.Sid)
	s.Transport().SetSid(data.Sid)
	s.upgrades = s.filterUpgrades(data.Upgrades)

	s.onOpen()

	// in case open handlers closed the socket
	if s.ReadyState() == "closed" {
		return
	}
	s.resetPingTimeout()
}

// Called when the connection is deemed open.
func (s *Socket) onOpen() {
	socket_log.Debug("socket open")
	s.SetReadyState("open")
	s.priorWebsocketSuccess.Store(transports.WEBSOCKET == s.Transport().Name())
	s.Emit("open")
	s.flush()

	if s.ReadyState() == "open" && s.opts.Upgrade() && s.Transport().Name() == transports.POLLING {
		socket_log.Debug("starting upgrade probes")
		for _, upgrade := range s.upgrades {
			s.probe(upgrade)
		}
	}
}

// filterUpgrades keeps only the server-announced upgrades this client is
// configured to use.
func (s *Socket) filterUpgrades(upgrades []string) []string {
	filtered := []string{}
	for _, upgrade := range upgrades {
		if _, ok := transports.Transports()[upgrade]; ok && s.opts.Transports().Has(upgrade) {
			filtered = append(filtered, upgrade)
		}
	}
	return filtered
}

// Resets the heartbeat expiry timer. The link is declared dead when no ping
// arrives within pingInterval + pingTimeout of the previous packet.
func (s *Socket) resetPingTimeout() {
	handshake := s.handshake.Load()
	if handshake == nil {
		return
	}

	utils.ClearTimeout(s.pingTimeoutTimer.Load())
	s.pingTimeoutTimer.Store(utils.SetTimeout(func() {
		if s.ReadyState() == "closed" {
			return
		}
		s.onError("ping timeout", errors.ErrHeartbeatExpired)
	}, handshake.pingIntervalDuration()+handshake.pingTimeoutDuration()))
}

// Probes a candidate transport while the current one keeps serving
// traffic; commits the upgrade only after the probe pong confirms the
// candidate is viable end to end.
func (s *Socket) probe(name string) {
	if !s.probing.CompareAndSwap(false, true) {
		socket_log.Debug(`skipping probe "%s" - probe already in flight`, name)
		return
	}
	socket_log.Debug(`probing transport "%s"`, name)

	transport := s.createTransport(name)
	failed := &atomic.Bool{}
	var upgradeTimeoutTimer atomic.Pointer[utils.Timer]

	var cleanup func()
	var onTransportOpen, onProbePacket, onerror, onTransportClose, onclose events.Listener

	freezeTransport := func(cause error) {
		if !failed.CompareAndSwap(false, true) {
			return
		}
		socket_log.Debug(`probe transport "%s" failed: %v`, name, cause)
		cleanup()
		transport.Close()

		// if the current transport was already paused for the cutover it
		// has to come back, or nothing serves the session anymore. Resume
		// before lifting the upgrading flag so the flush below goes out on
		// a writable transport.
		if s.ReadyState() != "closed" {
			if current := s.Transport(); current != nil {
				current.Resume()
			}
		}
		s.probing.Store(false)
		s.upgrading.Store(false)
		s.Emit("upgradeError", errors.NewUpgradeError(name, cause))
		s.flush()
	}

	onTransportOpen = func(...any) {
		if failed.Load() {
			return
		}

		socket_log.Debug(`probe transport "%s" opened`, name)
		transport.Once("packet", onProbePacket)
		transport.Send([]*packet.Packet{{
			Type: packet.PING,
			Data: types.NewStringBufferString("probe"),
		}})
	}

	onProbePacket = func(msgs ...any) {
		if failed.Load() {
			return
		}

		msg := msgs[0].(*packet.Packet)
		payload := new(strings.Builder)
		if msg.Data != nil {
			io.Copy(payload, msg.Data)
		}

		if packet.PONG != msg.Type || "probe" != payload.String() {
			freezeTransport(errors.NewTransportError("probe error", name, nil))
			return
		}

		socket_log.Debug(`probe transport "%s" pong`, name)
		s.upgrading.Store(true)
		s.Emit("upgrading", transport)

		old := s.Transport()
		s.priorWebsocketSuccess.Store(transports.WEBSOCKET == transport.Name())

		socket_log.Debug(`pausing current transport "%s"`, old.Name())
		old.Pause(func() {
			if failed.Load() {
				// the probe lost the race against freezeTransport; undo
				// the pause so the session keeps its transport
				old.Resume()
				return
			}
			if s.ReadyState() == "closed" {
				return
			}
			socket_log.Debug("changing transport and sending upgrade packet")

			cleanup()
			s.setTransport(transport)
			transport.Send([]*packet.Packet{{Type: packet.UPGRADE}})
			s.Emit("upgrade", transport)

			s.probing.Store(false)
			s.upgrading.Store(false)
			// packets queued during the upgrade window go out on the new
			// transport, in order, before anything sent after the cutover
			s.flush()

			old.Close()
		})
	}

	onerror = func(errs ...any) {
		err, _ := errs[0].(error)
		freezeTransport(err)
	}

	onTransportClose = func(...any) {
		freezeTransport(errors.NewTransportError("transport closed", name, nil))
	}

	// a socket close always wins over an in-progress upgrade
	onclose = func(...any) {
		freezeTransport(errors.NewTransportError("socket closed", name, nil))
	}

	cleanup = func() {
		utils.ClearTimeout(upgradeTimeoutTimer.Load())

		transport.RemoveListener("open", onTransportOpen)
		transport.RemoveListener("packet", onProbePacket)
		transport.RemoveListener("error", onerror)
		transport.RemoveListener("close", onTransportClose)
		s.RemoveListener("close", onclose)
	}

	upgradeTimeoutTimer.Store(utils.SetTimeout(func() {
		freezeTransport(errors.NewTransportError("probe timeout", name, nil))
	}, s.opts.UpgradeTimeout()))

	transport.Once("open", onTransportOpen)
	transport.Once("error", onerror)
	transport.Once("close", onTransportClose)
	s.Once("close", onclose)

	transport.Open()
}

// Called on transport "drain": the buffered packets were handed to the
// network.
func (s *Socket) onDrain() {
	if s.writeBuffer.Len() == 0 {
		s.Emit("drain")
	} else {
		s.flush()
	}
}

// Flushes the write buffer to the active transport.
func (s *Socket) flush() {
	s.mu_flush.Lock()

	transport := s.Transport()
	if s.ReadyState() == "closed" || s.upgrading.Load() ||
		transport == nil || !transport.Writable() {
		s.mu_flush.Unlock()
		return
	}

	wbuf := s.writeBuffer.AllAndClear()
	if len(wbuf) == 0 {
		s.mu_flush.Unlock()
		return
	}

	socket_log.Debug("flushing %d packets in socket", len(wbuf))
	transport.Send(wbuf)
	s.mu_flush.Unlock()

	s.Emit("flush", wbuf)
}

// Send transmits a message. Order is preserved relative to other sends,
// across transport upgrades included.
func (s *Socket) Send(data io.Reader, options *packet.Options) *Socket {
	s.sendPacket(packet.MESSAGE, data, options)
	return s
}

// Write is an alias of [Socket.Send].
func (s *Socket) Write(data io.Reader, options *packet.Options) *Socket {
	s.sendPacket(packet.MESSAGE, data, options)
	return s
}

// SendString transmits a text message.
func (s *Socket) SendString(data string) *Socket {
	return s.Send(types.NewStringBufferString(data), nil)
}

func (s *Socket) sendPacket(packetType packet.Type, data io.Reader, options *packet.Options) {
	if state := s.ReadyState(); state == "closing" || state == "closed" {
		return
	}

	socket_log.Debug(`sending packet "%s"`, packetType)

	p := &packet.Packet{
		Type:    packetType,
		Data:    data,
		Options: options,
	}
	s.Emit("packetCreate", p)
	s.writeBuffer.Push(p)
	s.flush()
}

// Close shuts the connection down, draining buffered packets within the
// close grace period first.
func (s *Socket) Close() *Socket {
	state := s.ReadyState()
	if state != "opening" && state != "open" {
		return s
	}
	s.SetReadyState("closing")

	closeFn := func() {
		utils.ClearTimeout(s.closeGraceTimer.Load())
		s.onClose("forced close", nil)
	}

	if s.writeBuffer.Len() > 0 {
		socket_log.Debug("%d packets pending, waiting for drain before closing", s.writeBuffer.Len())
		s.closeGraceTimer.Store(utils.SetTimeout(closeFn, s.opts.CloseTimeout()))
		s.Once("drain", func(...any) {
			closeFn()
		})
		return s
	}

	closeFn()
	return s
}

// Called upon transport error. Fatal conditions emit "error" before the
// close event fires.
func (s *Socket) onError(reason string, err error) {
	socket_log.Debug("socket error %v", err)
	s.priorWebsocketSuccess.Store(false)

	if err != nil {
		s.Emit("error", err)
	}
	s.onClose(reason, err)
}

// Called upon transport close. This is the single teardown path: every
// fatal condition funnels through here exactly once.
func (s *Socket) onClose(reason string, description error) {
	state := s.ReadyState()
	if state != "opening" && state != "open" && state != "closing" {
		return
	}

	socket_log.Debug(`socket close with reason: "%s"`, reason)

	utils.ClearTimeout(s.pingTimeoutTimer.Load())
	utils.ClearTimeout(s.closeGraceTimer.Load())

	// stop listening to the transport and make sure it won't stay open
	s.clearTransport()
	if transport := s.Transport(); transport != nil {
		transport.Close()
	}

	s.SetReadyState("closed")
	s.setId("")

	s.Emit("close", reason, description)

	// developers can still grab the buffer on the close event
	s.writeBuffer.Clear()
}
