// Package framing implements HAP's session-layer encryption: per-direction
// nonce counters and the two wire framings (HTTP/TCP and GATT) built on top
// of ChaCha20-Poly1305.
package framing

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/go-hap/controller/haperr"
)

// Trace activates wire logging of frame boundaries, mirroring the
// session package's wire-tracing switch.
var Trace = false

// Direction names one of the two independent nonce counters a paired
// connection keeps — one per side, never shared.
type Direction uint8

const (
	ControllerToAccessory Direction = iota
	AccessoryToController
)

func (d Direction) String() string {
	if d == ControllerToAccessory {
		return "controller->accessory"
	}
	return "accessory->controller"
}

// IPMaxPlaintext and GATTMaxPlaintext are the per-frame plaintext ceilings,
// spec.md §4.4.
const (
	IPMaxPlaintext   = 1024
	GATTMaxPlaintext = 496
)

// Counter is a monotonic 64-bit nonce counter for one direction of one
// session. It is never reset and never wraps in practice; HAP sessions are
// re-established via Pair-Verify/Pair-Resume long before 2^64 frames.
type Counter struct {
	n uint64
}

// Next returns the next nonce value and advances the counter.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64(&c.n, 1) - 1
}

// Peek returns the counter's current value without advancing it.
func (c *Counter) Peek() uint64 {
	return atomic.LoadUint64(&c.n)
}

func nonceFor(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// Framer seals and opens frames for one paired connection. ReadKey and
// WriteKey are the two session keys derived at the end of Pair-Verify or
// Pair-Resume (spec.md §4.3); each direction keeps its own Counter.
type Framer struct {
	writeKey []byte
	readKey  []byte

	writeCounter Counter
	readCounter  Counter
}

// New returns a Framer for a session whose write/read keys were just
// derived. writeKey encrypts outgoing frames; readKey decrypts incoming
// ones.
func New(writeKey, readKey []byte) *Framer {
	return &Framer{writeKey: writeKey, readKey: readKey}
}

func (f *Framer) sealAEAD(key []byte, counter uint64, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, haperr.Proto("constructing frame AEAD cipher", err)
	}
	return aead.Seal(nil, nonceFor(counter), plaintext, aad), nil
}

func (f *Framer) openAEAD(key []byte, counter uint64, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, haperr.Proto("constructing frame AEAD cipher", err)
	}
	return aead.Open(nil, nonceFor(counter), ciphertext, aad)
}
