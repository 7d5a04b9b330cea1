package ip

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"

	"github.com/go-hap/controller/haperr"
)

// eventState is one of the three stages of parsing a single EVENT/1.0
// push message off the wire.
type eventState uint8

const (
	eventStateLine eventState = iota
	eventStateHeaders
	eventStateBody
)

// MissingContentLengthMode controls EventParser's behavior when an
// EVENT/1.0 message's headers omit Content-Length — an Open Question in
// spec.md §9. The corrected behavior (WaitForHint) is the default; the
// zero-length legacy behavior is opt-in for compatibility testing against
// older accessories that are known to misbehave this way.
type MissingContentLengthMode uint8

const (
	// WaitForHint reads a message without Content-Length using the size
	// hint the caller supplied via EventParser.ExpectBodySize for the next
	// message; without a hint, the message is rejected with an error.
	WaitForHint MissingContentLengthMode = iota
	// LegacyZeroLength always treats a missing Content-Length as a
	// zero-byte body, matching older, non-conforming accessories.
	LegacyZeroLength
)

// EventParser decodes the EVENT/1.0 asynchronous push-message framing that
// can arrive on a HAP-over-HTTP connection between ordinary request/response
// pairs (spec.md §4.5).
type EventParser struct {
	reader *bufio.Reader
	tp     *textproto.Reader

	state       eventState
	headers     textproto.MIMEHeader
	ContentMode MissingContentLengthMode

	nextBodyHint int
	haveHint     bool
}

func newEventParser(r *bufio.Reader) *EventParser {
	return &EventParser{
		reader: r,
		tp:     textproto.NewReader(r),
		state:  eventStateLine,
	}
}

// ExpectBodySize supplies a size hint for the next message's body when
// ContentMode is WaitForHint and the accessory is known to omit
// Content-Length for that message type.
func (p *EventParser) ExpectBodySize(n int) {
	p.nextBodyHint = n
	p.haveHint = true
}

// Next reads one complete EVENT/1.0 message (status line, headers, body)
// and returns its decoded JSON body bytes.
func (p *EventParser) Next() ([]byte, error) {
	line, err := p.tp.ReadLine()
	if err != nil {
		return nil, haperr.Transp("reading EVENT status line", err)
	}
	if line != "EVENT/1.0 200 OK" {
		return nil, haperr.Proto("unexpected status line: "+line, nil)
	}
	p.state = eventStateHeaders

	headers, err := p.tp.ReadMIMEHeader()
	if err != nil {
		return nil, haperr.Transp("reading EVENT headers", err)
	}
	p.headers = headers
	p.state = eventStateBody

	contentLength := headers.Get("Content-Length")
	var n int
	switch {
	case contentLength != "":
		n, err = strconv.Atoi(contentLength)
		if err != nil {
			return nil, haperr.Proto("malformed Content-Length in EVENT message", err)
		}
	case p.haveHint:
		n = p.nextBodyHint
		p.haveHint = false
	case p.ContentMode == LegacyZeroLength:
		n = 0
	default:
		return nil, haperr.Proto("EVENT message missing Content-Length and no size hint supplied", nil)
	}

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(p.reader, body); err != nil {
			return nil, haperr.Transp("reading EVENT body", err)
		}
	}

	p.state = eventStateLine
	return body, nil
}
