package transports

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/edgewire/engine.io-client/config"
	"github.com/edgewire/engine.io-client/events"
	"github.com/edgewire/engine.io-client/log"
	"github.com/edgewire/engine.io-client/packet"
	"github.com/edgewire/engine.io-client/types"
)

var polling_log = log.NewLog("engine-client:polling")

// polling is the HTTP long-polling transport: a GET round trip is always in
// flight to receive pushed data, writes go out as POSTs carrying a batched
// payload.
type polling struct {
	*transport

	client *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	_polling   bool
	mu_polling sync.RWMutex

	musend sync.Mutex
}

// HTTP long-polling New.
func NewPolling(uri *url.URL, opts config.SocketOptionsInterface) Transport {
	p := &polling{transport: &transport{}}

	p.name = POLLING
	p.supportsBinary = false

	p.construct(uri, opts)

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.client = &http.Client{Timeout: opts.RequestTimeout()}

	p.doOpen = p.pollingDoOpen
	p.doClose = p.pollingDoClose
	p.doPause = p.pollingDoPause
	p.doResume = p.pollingDoResume
	p.write = p.pollingWrite

	return p
}

func (p *polling) polling() bool {
	p.mu_polling.RLock()
	defer p.mu_polling.RUnlock()

	return p._polling
}

func (p *polling) setPolling(polling bool) {
	p.mu_polling.Lock()
	defer p.mu_polling.Unlock()

	p._polling = polling
}

func (p *polling) pollingDoOpen() {
	p.poll()
}

// Starts a polling cycle.
func (p *polling) poll() {
	polling_log.Debug("polling")
	p.setPolling(true)
	p.Emit("poll")

	go p.doPoll()
}

func (p *polling) doPoll() {
	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, p.createURI(p.uri.Scheme).String(), nil)
	if err != nil {
		p.OnError("xhr poll error", err)
		return
	}
	p.setRequestHeaders(req)

	res, err := p.client.Do(req)
	if err != nil {
		p.OnError("xhr poll error", err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		p.OnError("xhr poll error", statusError(res.StatusCode))
		return
	}

	data, err := p.readBody(res)
	if err != nil {
		p.OnError("xhr poll error", err)
		return
	}
	p.pollingOnData(data)
}

// Processes the payload of one poll round trip.
func (p *polling) pollingOnData(data types.BufferInterface) {
	polling_log.Debug(`polling got data %q`, data.String())

	packets, err := p.parser.DecodePayload(data)
	if err != nil {
		// a broken frame closes the current packet only
		p.OnError("parse error", err)
	}

	for _, packetData := range packets {
		// the very first packet opens the transport itself
		if p.ReadyState() == "opening" && packet.OPEN == packetData.Type {
			p.OnOpen()
		}
		if packet.CLOSE == packetData.Type {
			polling_log.Debug("got xhr close packet")
			p.OnClose()
			return
		}
		p.OnPacket(packetData)
	}

	p.setPolling(false)
	p.Emit("pollComplete")

	if p.ReadyState() == "open" {
		p.poll()
	} else {
		polling_log.Debug(`ignoring poll - transport state "%s"`, p.ReadyState())
	}
}

// Writes a packet payload as a POST round trip.
func (p *polling) pollingWrite(packets []*packet.Packet) {
	p.SetWritable(false)

	go func() {
		p.musend.Lock()
		defer p.musend.Unlock()

		data, err := p.parser.EncodePayload(packets)
		if err != nil {
			p.OnError("xhr post error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.opts.RequestTimeout())
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.createURI(p.uri.Scheme).String(), data)
		if err != nil {
			p.OnError("xhr post error", err)
			return
		}
		p.setRequestHeaders(req)
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

		res, err := p.client.Do(req)
		if err != nil {
			p.OnError("xhr post error", err)
			return
		}
		defer res.Body.Close()
		io.Copy(io.Discard, res.Body)

		if res.StatusCode != http.StatusOK {
			p.OnError("xhr post error", statusError(res.StatusCode))
			return
		}

		p.SetWritable(true)
		p.Emit("drain")
	}()
}

// Pauses polling so an upgrade can cut over without losing packets. onPause
// runs once the in-flight poll and any pending write have settled.
func (p *polling) pollingDoPause(onPause types.Callable) {
	p.SetReadyState("pausing")

	var check events.Listener

	pause := func() {
		p.RemoveListener("pollComplete", check)
		p.RemoveListener("drain", check)

		// a resume or close while settling cancels the pause
		if !p.swapReadyState("paused", "pausing") {
			return
		}
		polling_log.Debug("paused")
		if onPause != nil {
			onPause()
		}
	}

	// re-evaluate instead of counting: pollComplete/drain fire only after
	// the polling/writable flags flip, so whenever both flags read settled
	// nothing is in flight anymore
	check = func(...any) {
		if p.polling() {
			polling_log.Debug("we are currently polling - waiting to pause")
			return
		}
		if !p.Writable() {
			polling_log.Debug("we are currently writing - waiting to pause")
			return
		}
		pause()
	}

	// subscribe before sampling so a request settling mid-setup cannot be
	// missed
	p.On("pollComplete", check)
	p.On("drain", check)
	check()
}

// Puts a paused transport back in service, restarting the poll loop when no
// request is in flight.
func (p *polling) pollingDoResume() {
	if p.swapReadyState("open", "pausing", "paused") {
		polling_log.Debug("resumed")
		if !p.polling() {
			p.poll()
		}
	}
}

func (p *polling) pollingDoClose() {
	polling_log.Debug("closing")

	if p.ReadyState() == "open" {
		// best effort; the server also expires the session on its own
		polling_log.Debug("transport open - telling the server to close")
		p.pollingWrite([]*packet.Packet{{Type: packet.CLOSE}})
	}

	// abort the pending poll
	p.cancel()
}

func (p *polling) setRequestHeaders(req *http.Request) {
	for k, vs := range p.opts.ExtraHeaders() {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
}

// readBody drains one HTTP response, reversing any content encoding the
// server applied.
func (p *polling) readBody(res *http.Response) (types.BufferInterface, error) {
	var reader io.Reader = res.Body

	switch res.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(res.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(res.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(res.Body)
	}

	data := types.NewStringBuffer(nil)
	if _, err := data.ReadFrom(reader); err != nil {
		return nil, err
	}
	return data, nil
}

type statusError int

func (e statusError) Error() string {
	return "unexpected HTTP status " + strconv.Itoa(int(e))
}

