package engine

import (
	"sync"
	"testing"
	"time"

	stderrors "errors"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/errors"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollingOnlyOptions() *config.SocketOptions {
	opts := config.DefaultSocketOptions()
	opts.SetTransports(types.NewSet("polling"))
	opts.SetUpgrade(false)
	opts.SetRequestTimeout(2 * time.Second)
	return opts
}

func upgradeOptions() *config.SocketOptions {
	opts := config.DefaultSocketOptions()
	opts.SetRequestTimeout(2 * time.Second)
	opts.SetUpgradeTimeout(2 * time.Second)
	return opts
}

func openSocket(t *testing.T, srv *testServer, opts config.SocketOptionsInterface) *Socket {
	t.Helper()

	socket, err := NewSocket(srv.URL, opts)
	require.NoError(t, err)

	opened := make(chan struct{})
	socket.Once("open", func(...any) { close(opened) })
	socket.Open()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("socket never opened")
	}
	t.Cleanup(func() { socket.Close() })

	return socket
}

func TestSocketHandshake(t *testing.T) {
	srv := newTestServer(t, nil)

	handshakes := make(chan *HandshakeData, 1)
	socket, err := NewSocket(srv.URL, pollingOnlyOptions())
	require.NoError(t, err)
	socket.Once("handshake", func(args ...any) { handshakes <- args[0].(*HandshakeData) })

	opened := make(chan struct{})
	socket.Once("open", func(...any) { close(opened) })
	socket.Open()
	defer socket.Close()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("socket never opened")
	}

	assert.Equal(t, "open", socket.ReadyState())
	assert.Equal(t, "test-sid", socket.Id())
	assert.Equal(t, "polling", socket.Transport().Name())

	handshake := <-handshakes
	assert.Equal(t, "test-sid", handshake.Sid)
	assert.Equal(t, 25*time.Second, handshake.pingIntervalDuration())
}

func TestSocketRejectsUnsupportedScheme(t *testing.T) {
	_, err := NewSocket("ftp://example.com", nil)
	assert.Error(t, err)
}

func TestSocketSendAndReceive(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	messages := make(chan string, 4)
	socket.On("message", func(args ...any) {
		data := types.NewStringBuffer(nil)
		data.ReadFrom(args[0].(*types.StringBuffer))
		messages <- data.String()
	})

	srv.Push(&packet.Packet{Type: packet.MESSAGE, Data: types.NewStringBufferString("hello")})

	select {
	case msg := <-messages:
		assert.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}

	socket.SendString("hi")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "hi", content(got))
}

func TestSocketAnswersServerPing(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	pings := make(chan struct{}, 1)
	pongs := make(chan struct{}, 1)
	socket.Once("ping", func(...any) { pings <- struct{}{} })
	socket.Once("pong", func(...any) { pongs <- struct{}{} })

	srv.Push(&packet.Packet{Type: packet.PING})

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("ping event never fired")
	}
	select {
	case <-pongs:
	case <-time.After(2 * time.Second):
		t.Fatal("pong event never fired")
	}

	awaitPacket(t, srv.Received, packet.PONG)
}

func TestSocketHeartbeatExpiry(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		// expiry well before the long poll returns a noop
		s.pingInterval = 40
		s.pingTimeout = 30
	})

	socket := openSocket(t, srv, pollingOnlyOptions())

	var mu sync.Mutex
	var order []string

	closed := make(chan string, 1)
	socket.Once("error", func(args ...any) {
		mu.Lock()
		order = append(order, "error")
		mu.Unlock()

		err, _ := args[0].(error)
		assert.True(t, stderrors.Is(err, errors.ErrHeartbeatExpired))
	})
	socket.Once("close", func(args ...any) {
		mu.Lock()
		order = append(order, "close")
		mu.Unlock()

		reason, _ := args[0].(string)
		closed <- reason
	})

	select {
	case reason := <-closed:
		assert.Equal(t, "ping timeout", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat expiry never closed the socket")
	}

	mu.Lock()
	assert.Equal(t, []string{"error", "close"}, order)
	mu.Unlock()
	assert.Equal(t, "closed", socket.ReadyState())
}

func TestSocketHeartbeatResetOnTraffic(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.pingInterval = 100
		s.pingTimeout = 80
	})

	socket := openSocket(t, srv, pollingOnlyOptions())

	closed := make(chan struct{})
	socket.Once("close", func(...any) { close(closed) })

	// keep pinging under the expiry deadline; the socket must stay open
	for i := 0; i < 4; i++ {
		srv.Push(&packet.Packet{Type: packet.PING})
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case <-closed:
		t.Fatal("socket closed despite regular pings")
	default:
	}
	assert.Equal(t, "open", socket.ReadyState())
}

func TestSocketUpgradesToWebSocket(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.upgrades = []string{"websocket"}
	})

	socket, err := NewSocket(srv.URL, upgradeOptions())
	require.NoError(t, err)

	upgraded := make(chan struct{})
	socket.Once("upgrade", func(...any) { close(upgraded) })
	socket.Open()
	defer socket.Close()

	select {
	case <-upgraded:
	case <-time.After(3 * time.Second):
		t.Fatal("upgrade never completed")
	}

	assert.Equal(t, "websocket", socket.Transport().Name())
	assert.Equal(t, "open", socket.ReadyState())
	assert.False(t, socket.Upgrading())

	// traffic keeps flowing on the new transport
	socket.SendString("after-upgrade")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "after-upgrade", content(got))

	messages := make(chan string, 1)
	socket.Once("message", func(args ...any) {
		data := types.NewBytesBuffer(nil)
		if r, ok := args[0].(*types.StringBuffer); ok {
			data.ReadFrom(r)
		}
		messages <- data.String()
	})
	srv.Push(&packet.Packet{Type: packet.MESSAGE, Data: types.NewStringBufferString("downstream")})

	select {
	case msg := <-messages:
		assert.Equal(t, "downstream", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("post-upgrade message never arrived")
	}
}

func TestSocketProbeFailureKeepsCurrentTransport(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.upgrades = []string{"websocket"}
		s.rejectWS = true
	})

	socket, err := NewSocket(srv.URL, upgradeOptions())
	require.NoError(t, err)

	upgradeErrs := make(chan error, 1)
	socket.Once("upgradeError", func(args ...any) { upgradeErrs <- args[0].(error) })
	socket.On("upgrade", func(...any) { t.Error("upgrade must not succeed") })

	opened := make(chan struct{})
	socket.Once("open", func(...any) { close(opened) })
	socket.Open()
	defer socket.Close()

	<-opened

	select {
	case err := <-upgradeErrs:
		var ue *errors.UpgradeError
		assert.ErrorAs(t, err, &ue)
	case <-time.After(3 * time.Second):
		t.Fatal("upgradeError never fired")
	}

	// the session survives on the original transport
	assert.Equal(t, "open", socket.ReadyState())
	assert.Equal(t, "polling", socket.Transport().Name())

	socket.SendString("still-alive")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "still-alive", content(got))
}

func TestSocketUpgradePreservesSendOrder(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.upgrades = []string{"websocket"}
	})

	socket, err := NewSocket(srv.URL, upgradeOptions())
	require.NoError(t, err)

	// packets queued while the cutover is in progress must come out on the
	// new transport in send order
	socket.Once("upgrading", func(...any) {
		socket.SendString("during-1")
		socket.SendString("during-2")
	})

	upgraded := make(chan struct{})
	socket.Once("upgrade", func(...any) { close(upgraded) })
	socket.Open()
	defer socket.Close()

	select {
	case <-upgraded:
	case <-time.After(3 * time.Second):
		t.Fatal("upgrade never completed")
	}
	socket.SendString("after")

	var got []string
	for len(got) < 3 {
		p := awaitPacket(t, srv.Received, packet.MESSAGE)
		got = append(got, content(p))
	}
	assert.Equal(t, []string{"during-1", "during-2", "after"}, got)
}

func TestSocketProbeTimeout(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.upgrades = []string{"websocket"}
		s.muteProbe = true
	})

	opts := upgradeOptions()
	opts.SetUpgradeTimeout(100 * time.Millisecond)

	socket, err := NewSocket(srv.URL, opts)
	require.NoError(t, err)

	upgradeErrs := make(chan error, 1)
	socket.Once("upgradeError", func(args ...any) { upgradeErrs <- args[0].(error) })
	socket.On("upgrade", func(...any) { t.Error("upgrade must not succeed") })
	socket.Open()
	defer socket.Close()

	select {
	case err := <-upgradeErrs:
		var ue *errors.UpgradeError
		assert.ErrorAs(t, err, &ue)
	case <-time.After(2 * time.Second):
		t.Fatal("probe timeout never surfaced")
	}

	// no upgrade packet went out and the session is still usable
	assert.False(t, srv.upgraded.Load())
	assert.Equal(t, "open", socket.ReadyState())
	assert.Equal(t, "polling", socket.Transport().Name())

	socket.SendString("still-alive")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "still-alive", content(got))
}

func TestSocketSurvivesCodecError(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	errs := make(chan error, 1)
	closed := make(chan struct{})
	socket.On("error", func(args ...any) { errs <- args[0].(error) })
	socket.Once("close", func(...any) { close(closed) })

	// a frame with an unknown type byte loses that packet only
	srv.PushRaw("3:9xx")

	select {
	case err := <-errs:
		var ce *errors.CodecError
		assert.ErrorAs(t, err, &ce)
	case <-time.After(2 * time.Second):
		t.Fatal("decode failure never surfaced")
	}

	select {
	case <-closed:
		t.Fatal("decode failure closed the socket")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, "open", socket.ReadyState())

	socket.SendString("still-alive")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "still-alive", content(got))
}

func TestSocketDeliversValidPacketsOfCorruptPayload(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	messages := make(chan string, 1)
	errs := make(chan error, 1)
	socket.On("message", func(args ...any) {
		data := types.NewStringBuffer(nil)
		data.ReadFrom(args[0].(*types.StringBuffer))
		messages <- data.String()
	})
	socket.On("error", func(args ...any) { errs <- args[0].(error) })

	// valid message followed by a frame with an unknown type byte
	srv.PushRaw("5:4good3:9xx")

	select {
	case msg := <-messages:
		assert.Equal(t, "good", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("valid packet of corrupt payload never delivered")
	}

	select {
	case err := <-errs:
		var ce *errors.CodecError
		assert.ErrorAs(t, err, &ce)
	case <-time.After(2 * time.Second):
		t.Fatal("decode failure never surfaced")
	}
	assert.Equal(t, "open", socket.ReadyState())
}

func TestSocketUpgradeFailureResumesPolling(t *testing.T) {
	srv := newTestServer(t, func(s *testServer) {
		s.upgrades = []string{"websocket"}
		s.killAfterProbe = true
		s.pollHold = 200 * time.Millisecond
	})

	socket, err := NewSocket(srv.URL, upgradeOptions())
	require.NoError(t, err)

	upgradeErrs := make(chan error, 1)
	socket.Once("upgradeError", func(args ...any) { upgradeErrs <- args[0].(error) })
	socket.On("upgrade", func(...any) { t.Error("upgrade must not succeed") })

	opened := make(chan struct{})
	socket.Once("open", func(...any) { close(opened) })
	socket.Open()
	defer socket.Close()

	<-opened

	// the websocket dies right after answering the probe, while the
	// polling transport is pausing for the cutover
	select {
	case err := <-upgradeErrs:
		var ue *errors.UpgradeError
		assert.ErrorAs(t, err, &ue)
	case <-time.After(3 * time.Second):
		t.Fatal("upgradeError never fired")
	}

	assert.Equal(t, "open", socket.ReadyState())
	assert.Equal(t, "polling", socket.Transport().Name())

	// outbound still goes through
	socket.SendString("still-alive")
	got := awaitPacket(t, srv.Received, packet.MESSAGE)
	assert.Equal(t, "still-alive", content(got))

	// and the poll loop is back to receiving pushes
	messages := make(chan string, 1)
	socket.Once("message", func(args ...any) {
		data := types.NewStringBuffer(nil)
		data.ReadFrom(args[0].(*types.StringBuffer))
		messages <- data.String()
	})
	srv.Push(&packet.Packet{Type: packet.MESSAGE, Data: types.NewStringBufferString("downstream")})

	select {
	case msg := <-messages:
		assert.Equal(t, "downstream", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("downstream message never arrived after failed upgrade")
	}
}

func TestSocketForcedClose(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	closed := make(chan string, 1)
	socket.Once("close", func(args ...any) {
		reason, _ := args[0].(string)
		closed <- reason
	})

	socket.Close()

	select {
	case reason := <-closed:
		assert.Equal(t, "forced close", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("close never fired")
	}
	assert.Equal(t, "closed", socket.ReadyState())

	// further sends are dropped silently
	socket.SendString("into the void")
}

func TestSocketServerInitiatedClose(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	closed := make(chan string, 1)
	socket.Once("close", func(args ...any) {
		reason, _ := args[0].(string)
		closed <- reason
	})

	srv.Push(&packet.Packet{Type: packet.CLOSE})

	select {
	case reason := <-closed:
		assert.Equal(t, "transport close", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("close never fired")
	}
}

func TestSocketBadHandshakeIsFatal(t *testing.T) {
	// the first packet of a session must be the open packet
	srv := newTestServer(t, nil)
	srv.handshaken.Store(true)
	srv.pollCh <- &packet.Packet{Type: packet.MESSAGE, Data: types.NewStringBufferString("surprise")}

	socket, err := NewSocket(srv.URL, pollingOnlyOptions())
	require.NoError(t, err)

	errs := make(chan error, 1)
	closed := make(chan struct{})
	socket.Once("error", func(args ...any) { errs <- args[0].(error) })
	socket.Once("close", func(...any) { close(closed) })
	socket.Open()

	select {
	case err := <-errs:
		var he *errors.HandshakeError
		assert.ErrorAs(t, err, &he)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake error never surfaced")
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("socket never closed after bad handshake")
	}
	assert.Equal(t, "closed", socket.ReadyState())
}

func TestSocketOpenIsIdempotent(t *testing.T) {
	srv := newTestServer(t, nil)
	socket := openSocket(t, srv, pollingOnlyOptions())

	assert.Same(t, socket, socket.Open())
	assert.Equal(t, "open", socket.ReadyState())
}
