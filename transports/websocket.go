package transports

import (
	"io"
	"net/url"
	"sync"

	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/log"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/types"
	ws "github.com/gorilla/websocket"
)

var websocket_log = log.NewLog("engine-client:websocket")

// websocket is the streaming transport: one persistent full-duplex channel,
// one frame per packet, binary carried natively.
type websocket struct {
	*transport

	socket    *ws.Conn
	mu_socket sync.RWMutex

	musend sync.Mutex
}

// WebSocket New.
func NewWebSocket(uri *url.URL, opts config.SocketOptionsInterface) Transport {
	w := &websocket{transport: &transport{}}

	w.name = WEBSOCKET
	w.supportsBinary = true

	w.construct(uri, opts)

	w.doOpen = w.webSocketDoOpen
	w.doClose = w.webSocketDoClose
	w.write = w.webSocketWrite

	return w
}

func (w *websocket) conn() *ws.Conn {
	w.mu_socket.RLock()
	defer w.mu_socket.RUnlock()

	return w.socket
}

func (w *websocket) webSocketDoOpen() {
	uri := w.createURI(wsScheme(w.uri.Scheme))
	websocket_log.Debug("dialing %s", uri)

	dialer := &ws.Dialer{
		Proxy:            ws.DefaultDialer.Proxy,
		HandshakeTimeout: w.opts.RequestTimeout(),
	}

	conn, res, err := dialer.Dial(uri.String(), w.opts.ExtraHeaders())
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		w.OnError("websocket connection error", err)
		return
	}

	w.mu_socket.Lock()
	w.socket = conn
	w.mu_socket.Unlock()

	go w.readLoop(conn)

	w.OnOpen()
}

func (w *websocket) readLoop(conn *ws.Conn) {
	for {
		mt, message, err := conn.NextReader()
		if err != nil {
			if w.ReadyState() == "closed" {
				return
			}
			// the channel is gone either way; a non-graceful end surfaces
			// as an error before the close event
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				w.OnError("websocket read error", err)
			}
			w.OnClose()
			return
		}

		switch mt {
		case ws.BinaryMessage:
			read := types.NewBytesBuffer(nil)
			if _, err := read.ReadFrom(message); err != nil {
				w.OnError("websocket read error", err)
				continue
			}
			w.OnData(read)
		case ws.TextMessage:
			read := types.NewStringBuffer(nil)
			if _, err := read.ReadFrom(message); err != nil {
				w.OnError("websocket read error", err)
				continue
			}
			w.OnData(read)
		case ws.CloseMessage:
			w.OnClose()
			return
		}
	}
}

// Writes the packets one frame each, then signals drain.
func (w *websocket) webSocketWrite(packets []*packet.Packet) {
	w.SetWritable(false)

	go func() {
		w.musend.Lock()
		defer w.musend.Unlock()

		conn := w.conn()
		if conn == nil {
			return
		}

		for _, packetData := range packets {
			data, err := w.parser.EncodePacket(packetData, w.supportsBinary)
			if err != nil {
				websocket_log.Debug(`encode error "%s"`, err)
				continue
			}

			mt := ws.BinaryMessage
			if _, ok := data.(*types.StringBuffer); ok {
				mt = ws.TextMessage
			}

			write, err := conn.NextWriter(mt)
			if err != nil {
				w.OnError("websocket write error", err)
				return
			}
			if _, err := io.Copy(write, data); err != nil {
				write.Close()
				w.OnError("websocket write error", err)
				return
			}
			if err := write.Close(); err != nil {
				w.OnError("websocket write error", err)
				return
			}
		}

		w.SetWritable(true)
		w.Emit("drain")
	}()
}

func (w *websocket) webSocketDoClose() {
	websocket_log.Debug("closing")

	if conn := w.conn(); conn != nil {
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
		conn.Close()
	}
}

func wsScheme(scheme string) string {
	if scheme == "https" || scheme == "wss" {
		return "wss"
	}
	return "ws"
}
