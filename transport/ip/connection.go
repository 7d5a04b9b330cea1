// Package ip implements HAP-over-HTTP: a single persistent TCP connection
// carrying HTTP/1.1 request/response pairs plus asynchronous EVENT/1.0
// push messages, secured by framing once Pair-Verify completes (spec.md
// §4.5).
package ip

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-hap/controller/framing"
	"github.com/go-hap/controller/haperr"
)

// Trace activates wire logging of requests and responses, mirroring the
// teacher's session.Trace switch.
var Trace = false

// State is the lifecycle of a Connection.
type State uint8

const (
	Closed State = iota
	Opening
	Ready
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config tunes Connection timing. Every zero field is filled with a HAP
// default on first use; out-of-range non-zero values panic, mirroring
// session.TCPConf.check().
type Config struct {
	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration
	// IdleTimeout is defaulted and stored by check; Connection applies no
	// idle deadline and does not close an inactive connection.
	IdleTimeout time.Duration
}

func (c *Config) check() *Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	} else if c.ConnectTimeout < 1*time.Second || c.ConnectTimeout > 120*time.Second {
		panic("ip: ConnectTimeout not in [1s, 120s]")
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

// Outbound is a single queued request/response exchange, modeled on the
// teacher's session.Outbound single-use submission handle.
type Outbound struct {
	Method string
	Path   string
	Body   []byte

	// Done receives exactly one result.
	Done <-chan OutboundResult
	done chan<- OutboundResult
}

// OutboundResult is what an Outbound resolves to.
type OutboundResult struct {
	Response *http.Response
	Body     []byte
	Err      error
}

// NewOutbound returns an Outbound ready to submit via Connection.Submit.
func NewOutbound(method, path string, body []byte) *Outbound {
	ch := make(chan OutboundResult, 1)
	return &Outbound{Method: method, Path: path, Body: body, Done: ch, done: ch}
}

// Connection is one persistent HAP-over-HTTP session. Requests are
// sequentialized through an internal queue so at most one request is ever
// in flight, matching HAP's pipelining restriction (spec.md §5).
type Connection struct {
	Config

	conn   net.Conn
	framer *framing.Framer // nil until Pair-Verify/Resume completes

	queue chan *Outbound
	quit  chan struct{}

	mu    sync.Mutex
	state State

	// Events receives decoded EVENT/1.0 push bodies. The socket is read
	// only while a request is in flight, so an event is delivered when it
	// arrives ahead of a response; none is read while the queue is idle,
	// and an event is dropped when the channel's buffer is full.
	Events <-chan []byte
	events chan<- []byte
}

// Dial opens a TCP connection to addr and starts its request queue. The
// returned Connection carries no encryption until SetSession is called
// with the keys derived from Pair-Verify or Pair-Resume.
func Dial(addr string, config Config) (*Connection, error) {
	config.check()

	c := &Connection{Config: config, state: Opening}
	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		c.state = Closed
		return nil, haperr.Transp("dialing HAP accessory", err)
	}
	c.conn = conn
	c.state = Ready

	c.queue = make(chan *Outbound)
	c.quit = make(chan struct{})
	eventsChan := make(chan []byte, 8)
	c.events = eventsChan
	c.Events = eventsChan

	go c.run()
	return c, nil
}

// SetSession installs the session keys derived at the end of Pair-Verify or
// Pair-Resume. Requests submitted before this call travel in the clear —
// used only for the initial pair-setup/pair-verify exchange itself.
func (c *Connection) SetSession(writeKey, readKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framer = framing.New(writeKey, readKey)
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit queues req and blocks until it has been sent and its response (or
// a transport error) is available.
func (c *Connection) Submit(req *Outbound) OutboundResult {
	select {
	case c.queue <- req:
	case <-c.quit:
		return OutboundResult{Err: haperr.Transp("connection closed", nil)}
	}
	return <-req.Done
}

// Close shuts the connection down, failing any outstanding or future
// requests.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == Closed || c.state == Closing {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	c.mu.Unlock()

	close(c.quit)
	err := c.conn.Close()

	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()
	return err
}

// run is the single writer/reader loop: it drains c.queue one request at a
// time (HAP forbids pipelining) and separately demultiplexes unsolicited
// EVENT/1.0 pushes arriving between responses.
func (c *Connection) run() {
	reader := bufio.NewReader(&decryptingReader{conn: c.conn, framerOf: func() *framing.Framer { return c.currentFramer() }})
	events := newEventParser(reader)
	defer close(c.events)

	for {
		select {
		case <-c.quit:
			return
		case req := <-c.queue:
			result := c.exchange(reader, events, req)
			req.done <- result
		}
	}
}

func (c *Connection) currentFramer() *framing.Framer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framer
}

func (c *Connection) exchange(reader *bufio.Reader, events *EventParser, req *Outbound) OutboundResult {
	wireReq := buildRequest(req.Method, req.Path, req.Body)

	c.mu.Lock()
	framer := c.framer
	c.mu.Unlock()

	payload := wireReq
	if framer != nil {
		sealed, err := framer.SealIP(wireReq)
		if err != nil {
			return OutboundResult{Err: err}
		}
		payload = sealed
	}

	if Trace {
		fmt.Printf("ip: %s %s (%d bytes on wire)\n", req.Method, req.Path, len(payload))
	}

	if _, err := c.conn.Write(payload); err != nil {
		return OutboundResult{Err: haperr.Transp("writing HAP request", err)}
	}

	for {
		peeked, err := reader.Peek(len(eventStatusLine))
		if err == nil && string(peeked) == eventStatusLine {
			// An EVENT/1.0 push arrived ahead of our response; consume
			// it with the dedicated parser and forward it, then keep
			// reading for the actual reply.
			body, evErr := events.Next()
			if evErr != nil {
				return OutboundResult{Err: evErr}
			}
			select {
			case c.events <- body:
			default:
			}
			continue
		}

		httpReq, _ := http.NewRequest(req.Method, req.Path, nil)
		resp, err := http.ReadResponse(reader, httpReq)
		if err != nil {
			return OutboundResult{Err: haperr.Transp("reading HAP response", err)}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return OutboundResult{Err: haperr.Transp("reading HAP response body", err)}
		}
		return OutboundResult{Response: resp, Body: body}
	}
}

const eventStatusLine = "EVENT/1.0"

func buildRequest(method, path string, body []byte) []byte {
	var b []byte
	b = append(b, method...)
	b = append(b, ' ')
	b = append(b, path...)
	b = append(b, " HTTP/1.1\r\n"...)
	b = append(b, "Host: hap\r\n"...)
	if len(body) > 0 {
		b = append(b, "Content-Type: application/hap+json\r\n"...)
		b = append(b, fmt.Sprintf("Content-Length: %d\r\n", len(body))...)
	}
	b = append(b, "\r\n"...)
	b = append(b, body...)
	return b
}

// decryptingReader adapts a net.Conn plus an on/off Framer into an
// io.Reader of plaintext bytes, so the same bufio.Reader-based HTTP parsing
// works before and after Pair-Verify installs session keys.
type decryptingReader struct {
	conn     net.Conn
	framerOf func() *framing.Framer

	pending []byte // decrypted but not yet consumed
	raw     []byte // undecrypted bytes read but not yet framed
}

func (r *decryptingReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		framer := r.framerOf()
		if framer == nil {
			return r.conn.Read(p)
		}

		buf := make([]byte, 4096)
		n, err := r.conn.Read(buf)
		if n > 0 {
			r.raw = append(r.raw, buf[:n]...)
			plain, consumed, openErr := framer.OpenIP(r.raw)
			if openErr != nil {
				return 0, openErr
			}
			r.raw = r.raw[consumed:]
			r.pending = append(r.pending, plain...)
		}
		if err != nil {
			if len(r.pending) > 0 {
				break
			}
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
