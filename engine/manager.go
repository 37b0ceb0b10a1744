package engine

import (
	"sync/atomic"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/errors"
	"github.com/edgewire/engine.io-client/events"
	"github.com/edgewire/engine.io-client/log"
	"github.com/edgewire/engine.io-client/types"
	"github.com/edgewire/engine.io-client/utils"
)

var manager_log = log.NewLog("engine-client:manager")

// Manager drives a [Socket] across connection attempts: it applies the
// connect timeout, and after an unexpected close schedules reconnections
// with randomized exponential backoff until the attempt limit is reached.
//
// Events: "open", "error", "close", "reconnect_attempt", "reconnect",
// "reconnect_error", "reconnect_failed", plus "packet"/"data"/"ping"
// forwarded from the underlying socket.
type Manager struct {
	events.EventEmitter

	uri  string
	opts config.ManagerOptionsInterface

	backoff *utils.Backoff

	readyState    atomic.Value
	reconnecting  atomic.Bool
	skipReconnect atomic.Bool

	socket atomic.Pointer[Socket]

	// teardown callbacks for the listeners of the current attempt
	subs *types.Slice[types.Callable]

	reconnectTimer atomic.Pointer[utils.Timer]
}

// NewManager creates a manager for the given endpoint. Nothing connects
// until Open is called.
func NewManager(uri string, opts config.ManagerOptionsInterface) *Manager {
	if opts == nil {
		opts = config.DefaultManagerOptions()
	}

	m := &Manager{
		EventEmitter: events.New(),

		uri:  uri,
		opts: opts,
		subs: types.NewSlice[types.Callable](),
	}
	m.readyState.Store("closed")
	m.backoff = utils.NewBackoff(
		utils.WithMin(opts.ReconnectionDelay()),
		utils.WithMax(opts.ReconnectionDelayMax()),
		utils.WithJitter(opts.RandomizationFactor()),
	)

	return m
}

func (m *Manager) Socket() *Socket {
	return m.socket.Load()
}

func (m *Manager) ReadyState() string {
	if v, ok := m.readyState.Load().(string); ok {
		return v
	}
	return "closed"
}

func (m *Manager) Reconnecting() bool {
	return m.reconnecting.Load()
}

// Open connects the underlying socket. fn, when non-nil, is called once
// with nil on success or with the connection error.
func (m *Manager) Open(fn func(error)) *Manager {
	manager_log.Debug("readyState %s", m.ReadyState())
	if state := m.ReadyState(); state == "open" || state == "opening" {
		return m
	}

	manager_log.Debug("opening %s", m.uri)

	socket, err := NewSocket(m.uri, m.opts)
	if err != nil {
		if fn != nil {
			fn(err)
		}
		m.Emit("error", err)
		return m
	}

	m.socket.Store(socket)
	m.readyState.Store("opening")
	m.skipReconnect.Store(false)

	onOpen := func(...any) {
		m.onOpen()
		if fn != nil {
			fn(nil)
		}
	}

	errorSub := func(errs ...any) {
		err, _ := errs[0].(error)
		manager_log.Debug("error")
		m.cleanup()
		m.readyState.Store("closed")
		m.Emit("error", err)
		if fn != nil {
			fn(err)
		} else {
			// only do this if there is no fn to handle the error
			m.maybeReconnectOnOpen()
		}
	}

	socket.Once("open", onOpen)
	socket.Once("error", errorSub)
	m.subs.Push(func() {
		socket.RemoveListener("open", onOpen)
		socket.RemoveListener("error", errorSub)
	})

	if timeout := m.opts.Timeout(); timeout > 0 {
		manager_log.Debug("connect attempt will timeout after %v", timeout)

		timer := utils.SetTimeout(func() {
			manager_log.Debug("connect attempt timed out after %v", timeout)
			socket.RemoveListener("open", onOpen)
			socket.Close()
			socket.Emit("error", errors.NewTransportError("timeout", "", nil))
		}, timeout)
		m.subs.Push(func() {
			utils.ClearTimeout(timer)
		})
	}

	socket.Open()
	return m
}

// Connect is an alias of [Manager.Open].
func (m *Manager) Connect(fn func(error)) *Manager {
	return m.Open(fn)
}

// Called when the handshake of the current attempt completed.
func (m *Manager) onOpen() {
	manager_log.Debug("open")

	m.cleanup()
	m.readyState.Store("open")
	m.Emit("open")

	socket := m.Socket()

	onData := func(datas ...any) { m.Emit("data", datas...) }
	onMessage := func(datas ...any) { m.Emit("message", datas...) }
	onPing := func(...any) { m.Emit("ping") }
	onError := func(errs ...any) {
		err, _ := errs[0].(error)
		manager_log.Debug("error %v", err)
		m.Emit("error", err)
	}
	onClose := func(args ...any) {
		reason := ""
		if len(args) > 0 {
			reason, _ = args[0].(string)
		}
		m.onClose(reason)
	}

	socket.On("data", onData)
	socket.On("message", onMessage)
	socket.On("ping", onPing)
	socket.On("error", onError)
	socket.On("close", onClose)

	m.subs.Push(func() {
		socket.RemoveListener("data", onData)
		socket.RemoveListener("message", onMessage)
		socket.RemoveListener("ping", onPing)
		socket.RemoveListener("error", onError)
		socket.RemoveListener("close", onClose)
	})
}

// Send transmits a message on the current socket, if any.
func (m *Manager) Send(data string) {
	if socket := m.Socket(); socket != nil {
		socket.SendString(data)
	}
}

// Removes the listeners of the current connection attempt.
func (m *Manager) cleanup() {
	manager_log.Debug("cleanup")

	for _, sub := range m.subs.AllAndClear() {
		sub()
	}
}

// Close tears the connection down for good; no reconnection follows.
func (m *Manager) Close() {
	manager_log.Debug("disconnect")

	m.skipReconnect.Store(true)
	m.reconnecting.Store(false)
	m.onClose("forced close")
	if socket := m.Socket(); socket != nil {
		socket.Close()
	}
}

// Disconnect is an alias of [Manager.Close].
func (m *Manager) Disconnect() {
	m.Close()
}

func (m *Manager) onClose(reason string) {
	manager_log.Debug("closed due to %s", reason)

	m.cleanup()
	utils.ClearTimeout(m.reconnectTimer.Load())
	m.backoff.Reset()
	m.readyState.Store("closed")
	m.Emit("close", reason)

	if m.opts.Reconnection() && !m.skipReconnect.Load() {
		m.reconnect()
	}
}

func (m *Manager) maybeReconnectOnOpen() {
	// only try to reconnect if it's the first time we're connecting
	if !m.reconnecting.Load() && m.opts.Reconnection() && m.backoff.Attempts() == 0 {
		m.reconnect()
	}
}

// Schedules the next reconnection attempt, or gives up once the configured
// attempt limit is exhausted.
func (m *Manager) reconnect() {
	if m.reconnecting.Load() || m.skipReconnect.Load() {
		return
	}

	if float64(m.backoff.Attempts()) >= m.opts.ReconnectionAttempts() {
		manager_log.Debug("reconnect failed")
		m.backoff.Reset()
		m.Emit("reconnect_failed")
		m.Emit("error", errors.NewTransportError("reconnection attempts exhausted", "", nil))
		m.reconnecting.Store(false)
		return
	}

	delay := m.backoff.Duration()
	manager_log.Debug("will wait %v before reconnect attempt", delay)

	m.reconnecting.Store(true)
	m.reconnectTimer.Store(utils.SetTimeout(func() {
		if m.skipReconnect.Load() {
			return
		}

		manager_log.Debug("attempting reconnect")
		m.Emit("reconnect_attempt", m.backoff.Attempts())

		// check again for the case socket closed in above events
		if m.skipReconnect.Load() {
			return
		}

		m.Open(func(err error) {
			if err != nil {
				manager_log.Debug("reconnect attempt error")
				m.reconnecting.Store(false)
				m.reconnect()
				m.Emit("reconnect_error", err)
			} else {
				manager_log.Debug("reconnect success")
				m.onReconnect()
			}
		})
	}, delay))

	m.subs.Push(func() {
		utils.ClearTimeout(m.reconnectTimer.Load())
	})
}

func (m *Manager) onReconnect() {
	attempts := m.backoff.Attempts()
	m.reconnecting.Store(false)
	m.backoff.Reset()
	m.Emit("reconnect", attempts)
}
