package ip

import (
	"bufio"
	"strings"
	"testing"
)

// scenario A: a well-formed EVENT message with Content-Length present.
func TestEventParserScenarioA(t *testing.T) {
	raw := "EVENT/1.0 200 OK\r\n" +
		"Content-Type: application/hap+json\r\n" +
		"Content-Length: 24\r\n" +
		"\r\n" +
		`{"characteristics":[{}]}` + "\r\n"

	p := newEventParser(bufio.NewReader(strings.NewReader(raw)))
	body, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 24 {
		t.Fatalf("got %d body bytes, want 24", len(body))
	}
}

// scenario B: Content-Length is missing. The corrected behavior is to wait
// for a caller-supplied hint rather than silently treating it as zero.
func TestEventParserScenarioBWithoutHint(t *testing.T) {
	raw := "EVENT/1.0 200 OK\r\n" +
		"Content-Type: application/hap+json\r\n" +
		"\r\n"

	p := newEventParser(bufio.NewReader(strings.NewReader(raw)))
	if _, err := p.Next(); err == nil {
		t.Fatal("expected an error when Content-Length is missing and no hint was given")
	}
}

func TestEventParserScenarioBWithHint(t *testing.T) {
	body := `{"characteristics":[]}`
	raw := "EVENT/1.0 200 OK\r\n" +
		"Content-Type: application/hap+json\r\n" +
		"\r\n" + body

	p := newEventParser(bufio.NewReader(strings.NewReader(raw)))
	p.ExpectBodySize(len(body))
	got, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestEventParserLegacyZeroLength(t *testing.T) {
	raw := "EVENT/1.0 200 OK\r\n\r\n"
	p := newEventParser(bufio.NewReader(strings.NewReader(raw)))
	p.ContentMode = LegacyZeroLength
	body, err := p.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 0 {
		t.Fatalf("got %d bytes, want 0", len(body))
	}
}

func TestBuildRequest(t *testing.T) {
	req := buildRequest("POST", "/pair-setup", []byte(`{"a":1}`))
	s := string(req)
	if !strings.HasPrefix(s, "POST /pair-setup HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", s[:30])
	}
	if !strings.Contains(s, "Content-Length: 7\r\n") {
		t.Fatal("missing Content-Length header")
	}
}
