package transports

import (
	"net/url"
	"sync"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/errors"
	"github.com/edgewire/engine.io-client/events"
	"github.com/edgewire/engine.io-client/log"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/parser"
	"github.com/edgewire/engine.io-client/types"
	"github.com/edgewire/engine.io-client/utils"
)

var transport_log = log.NewLog("engine-client:transport")

// Transport moves encoded payloads to and from the network. It never
// interprets packet semantics beyond framing; protocol logic lives in the
// engine. Events: "open", "packet", "error", "close", "drain".
type Transport interface {
	events.EventEmitter

	Name() string
	Sid() string
	SetSid(string)
	ReadyState() string
	Writable() bool
	SetWritable(bool)
	SupportsBinary() bool
	Parser() parser.Parser

	Open() Transport
	Close() Transport
	Send([]*packet.Packet)
	// Pause stops the transport from reading or writing so an upgrade can
	// cut over without losing packets; onPause runs once in-flight
	// requests have settled.
	Pause(types.Callable)
	// Resume reverses Pause, putting the transport back in service after
	// an upgrade attempt was abandoned.
	Resume()

	OnError(string, error)
	OnData(types.BufferInterface)
	OnPacket(*packet.Packet)
	OnClose()
}

// transport is the shared client transport base. Concrete variants fill in
// the do* hooks.
type transport struct {
	events.EventEmitter

	name           string
	supportsBinary bool

	uri    *url.URL
	opts   config.SocketOptionsInterface
	parser parser.Parser

	sid    string
	mu_sid sync.RWMutex

	_readyState   string // "", "opening", "open", "closing", "closed"
	mu_readyState sync.RWMutex

	_writable   bool
	mu_writable sync.RWMutex

	closeOnce sync.Once

	doOpen   func()
	doClose  func()
	doPause  func(types.Callable)
	doResume func()
	write    func([]*packet.Packet)
}

func (t *transport) construct(uri *url.URL, opts config.SocketOptionsInterface) {
	t.EventEmitter = events.New()
	t.uri = uri
	t.opts = opts
	t.parser = parser.Codec()
}

func (t *transport) Name() string {
	return t.name
}

func (t *transport) SupportsBinary() bool {
	return t.supportsBinary
}

func (t *transport) Parser() parser.Parser {
	return t.parser
}

func (t *transport) Sid() string {
	t.mu_sid.RLock()
	defer t.mu_sid.RUnlock()

	return t.sid
}

func (t *transport) SetSid(sid string) {
	t.mu_sid.Lock()
	defer t.mu_sid.Unlock()

	t.sid = sid
}

func (t *transport) Writable() bool {
	t.mu_writable.RLock()
	defer t.mu_writable.RUnlock()

	return t._writable
}

func (t *transport) SetWritable(writable bool) {
	t.mu_writable.Lock()
	defer t.mu_writable.Unlock()

	t._writable = writable
}

func (t *transport) ReadyState() string {
	t.mu_readyState.RLock()
	defer t.mu_readyState.RUnlock()

	return t._readyState
}

func (t *transport) SetReadyState(state string) {
	t.mu_readyState.Lock()
	defer t.mu_readyState.Unlock()

	transport_log.Debug(`readyState updated from %s to %s (%s)`, t._readyState, state, t.name)

	t._readyState = state
}

// swapReadyState transitions to state only while the current state is one of
// from, reporting whether the transition happened. Concurrent pause/resume
// paths race on the state, so check and set must be one step.
func (t *transport) swapReadyState(state string, from ...string) bool {
	t.mu_readyState.Lock()
	defer t.mu_readyState.Unlock()

	for _, f := range from {
		if t._readyState == f {
			transport_log.Debug(`readyState updated from %s to %s (%s)`, t._readyState, state, t.name)
			t._readyState = state
			return true
		}
	}
	return false
}

// Opens the transport.
func (t *transport) Open() Transport {
	if state := t.ReadyState(); state == "" || state == "closed" {
		t.SetReadyState("opening")
		t.doOpen()
	}
	return t
}

// Closes the transport. The underlying network resource is released
// exactly once regardless of how many times Close is called.
func (t *transport) Close() Transport {
	switch t.ReadyState() {
	case "opening", "open", "pausing", "paused":
		t.doClose()
		t.OnClose()
	}
	return t
}

// Sends multiple packets, preserving call order.
func (t *transport) Send(packets []*packet.Packet) {
	if t.ReadyState() == "open" {
		t.write(packets)
	} else {
		transport_log.Debug("transport is not open, discarding %d packets", len(packets))
	}
}

func (t *transport) Pause(onPause types.Callable) {
	if t.doPause != nil {
		t.doPause(onPause)
		return
	}
	if onPause != nil {
		onPause()
	}
}

func (t *transport) Resume() {
	if t.doResume != nil {
		t.doResume()
	}
}

// Called when the underlying channel is usable.
func (t *transport) OnOpen() {
	t.SetReadyState("open")
	t.SetWritable(true)
	t.Emit("open")
}

// Called with a transport error.
func (t *transport) OnError(msg string, desc error) {
	if t.ListenerCount("error") > 0 {
		t.Emit("error", errors.NewTransportError(msg, t.name, desc))
	} else {
		transport_log.Debug("ignored transport error %s (%v)", msg, desc)
	}
}

// Called with the encoded packet data of a single packet.
func (t *transport) OnData(data types.BufferInterface) {
	p, err := t.parser.DecodePacket(data)
	if err != nil {
		// per-packet failure, surface as diagnostic and keep the channel
		t.OnError("parse error", err)
		return
	}
	t.OnPacket(p)
}

// Called with a parsed-out packet from the data stream.
func (t *transport) OnPacket(data *packet.Packet) {
	t.Emit("packet", data)
}

// Called upon transport close. Runs at most once.
func (t *transport) OnClose() {
	t.closeOnce.Do(func() {
		t.SetReadyState("closed")
		t.SetWritable(false)
		t.Emit("close")
	})
}

// createURI builds the transport URI with the engine.io query parameters:
// protocol version, transport name, cache-busting timestamp and the session
// id once assigned.
func (t *transport) createURI(scheme string) *url.URL {
	uri := *t.uri
	uri.Scheme = scheme

	query := url.Values{}
	for k, vs := range t.opts.Query() {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("EIO", "4")
	query.Set("transport", t.name)
	query.Set("t", utils.YeastDate())
	if !t.supportsBinary {
		query.Set("b64", "1")
	}
	if sid := t.Sid(); sid != "" {
		query.Set("sid", sid)
	}
	uri.RawQuery = query.Encode()

	return &uri
}
