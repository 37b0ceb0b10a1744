package engine

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/parser"
	"github.com/edgewire/engine.io-client/types"
	ws "github.com/gorilla/websocket"
)

// testServer is a minimal engine.io server: polling handshake and push,
// websocket probe handling, upgrade bookkeeping. Tests drive it through
// Push and observe the client through Received.
type testServer struct {
	*httptest.Server

	t *testing.T

	pingInterval int64
	pingTimeout  int64
	upgrades     []string
	rejectWS       bool
	muteProbe      bool
	killAfterProbe bool
	pollHold       time.Duration

	pollCh   chan *packet.Packet
	rawCh    chan string
	Received chan *packet.Packet

	handshaken atomic.Bool
	upgraded   atomic.Bool

	wsConn   *ws.Conn
	mu_ws    sync.Mutex
	upgrader ws.Upgrader
}

func newTestServer(t *testing.T, configure func(*testServer)) *testServer {
	s := &testServer{
		t: t,

		pingInterval: 25_000,
		pingTimeout:  20_000,
		upgrades:     []string{},
		pollHold:     500 * time.Millisecond,

		pollCh:   make(chan *packet.Packet, 64),
		rawCh:    make(chan string, 64),
		Received: make(chan *packet.Packet, 64),

		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	if configure != nil {
		configure(s)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	if ws.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handlePoll(w, r)
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		http.Error(w, "bad method", http.StatusBadRequest)
	}
}

func (s *testServer) handshakeJSON() string {
	upgrades := ""
	for i, u := range s.upgrades {
		if i > 0 {
			upgrades += ","
		}
		upgrades += `"` + u + `"`
	}
	return fmt.Sprintf(`{"sid":"test-sid","upgrades":[%s],"pingInterval":%d,"pingTimeout":%d,"maxPayload":1000000}`,
		upgrades, s.pingInterval, s.pingTimeout)
}

func (s *testServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	if !s.handshaken.Swap(true) {
		s.writePayload(w, &packet.Packet{
			Type: packet.OPEN,
			Data: types.NewStringBufferString(s.handshakeJSON()),
		})
		return
	}

	select {
	case p := <-s.pollCh:
		s.writePayload(w, p)
	case raw := <-s.rawCh:
		io.WriteString(w, raw)
	case <-time.After(s.pollHold):
		s.writePayload(w, &packet.Packet{Type: packet.NOOP})
	}
}

func (s *testServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body := types.NewStringBuffer(nil)
	if _, err := body.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	packets, err := parser.Codec().DecodePayload(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range packets {
		s.Received <- p
	}
	io.WriteString(w, "ok")
}

func (s *testServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.rejectWS {
		http.Error(w, "websocket disabled", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var buf types.BufferInterface
		if mt == ws.BinaryMessage {
			buf = types.NewBytesBuffer(data)
		} else {
			buf = types.NewStringBuffer(data)
		}
		p, err := parser.Codec().DecodePacket(buf)
		if err != nil {
			continue
		}

		switch {
		case p.Type == packet.PING && content(p) == "probe":
			if s.muteProbe {
				continue
			}
			conn.WriteMessage(ws.TextMessage, []byte("3probe"))
			if s.killAfterProbe {
				// drop the connection right after acknowledging the
				// probe, before the client can commit the upgrade
				return
			}
			// release the pending long poll so the pause completes
			s.pollCh <- &packet.Packet{Type: packet.NOOP}
		case p.Type == packet.UPGRADE:
			s.mu_ws.Lock()
			s.wsConn = conn
			s.mu_ws.Unlock()
			s.upgraded.Store(true)
		default:
			s.Received <- p
		}
	}
}

// PushRaw delivers a pre-encoded polling payload verbatim, malformed
// framing included.
func (s *testServer) PushRaw(payload string) {
	s.rawCh <- payload
}

// Push delivers a packet to the client over its current transport.
func (s *testServer) Push(p *packet.Packet) {
	if s.upgraded.Load() {
		s.mu_ws.Lock()
		conn := s.wsConn
		s.mu_ws.Unlock()

		data, err := parser.Codec().EncodePacket(p, true)
		if err != nil {
			s.t.Errorf("encode push packet: %v", err)
			return
		}
		mt := ws.BinaryMessage
		if _, ok := data.(*types.StringBuffer); ok {
			mt = ws.TextMessage
		}
		conn.WriteMessage(mt, data.Bytes())
		return
	}
	s.pollCh <- p
}

func (s *testServer) writePayload(w http.ResponseWriter, packets ...*packet.Packet) {
	data, err := parser.Codec().EncodePayload(packets)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	io.WriteString(w, data.String())
}

// content drains a packet payload as a string.
func content(p *packet.Packet) string {
	if p.Data == nil {
		return ""
	}
	b, _ := io.ReadAll(p.Data)
	return string(b)
}

// awaitPacket pulls packets from ch until one of the wanted type shows up.
func awaitPacket(t *testing.T, ch <-chan *packet.Packet, want packet.Type) *packet.Packet {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-ch:
			if p.Type == want {
				return p
			}
		case <-deadline:
			t.Fatalf("packet of type %q never arrived", want)
			return nil
		}
	}
}
