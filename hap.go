// Package hap is a controller-side client for the Home Accessory Protocol:
// pairing, secure session framing, and the HTTP and GATT transports an iOS
// controller uses to talk to an accessory.
//
// # Client facades
//
// HTTPClient and GATTClient each own one paired accessory's session: an
// Identity established by Pair-Setup, the derived session keys from
// Pair-Verify or Pair-Resume, and the getAccessories/getCharacteristics/
// setCharacteristics/subscribe operations layered on top of their
// respective transport. Both share the same error taxonomy below
// regardless of which layer — pairing, framing, or transport — raised the
// error.
package hap

import (
	"fmt"

	"github.com/go-hap/controller/haperr"
)

// InvalidInputError signals a malformed caller-supplied input: a bad PIN,
// an unparsable UUID, or an unknown characteristic format name.
type InvalidInputError struct{ *haperr.InvalidInput }

// TransportError signals a connect failure, socket error, BLE disconnect,
// or operation timeout.
type TransportError struct{ *haperr.Transport }

// ProtocolError signals a missing TLV tag, wrong pairing state, unexpected
// GATT opcode status, or invalid HTTP status.
type ProtocolError struct{ *haperr.Protocol }

// AuthenticationError signals an SRP proof mismatch, signature verification
// failure, AEAD tag failure, or a pairing identifier substitution.
type AuthenticationError struct{ *haperr.Authentication }

// ErrNotPaired signals an operation that requires session keys when none
// have been established yet.
var ErrNotPaired = haperr.ErrNotPaired

// asTaxonomy re-wraps an error from pairing/framing/transport in the root
// package's exported type, so callers doing errors.As only ever need to
// know about hap.*Error regardless of which internal layer produced it.
func asTaxonomy(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *haperr.InvalidInput:
		return InvalidInputError{e}
	case *haperr.Transport:
		return TransportError{e}
	case *haperr.Protocol:
		return ProtocolError{e}
	case *haperr.Authentication:
		return AuthenticationError{e}
	default:
		return err
	}
}

func (e InvalidInputError) Error() string     { return fmt.Sprintf("%v", e.InvalidInput) }
func (e TransportError) Error() string        { return fmt.Sprintf("%v", e.Transport) }
func (e ProtocolError) Error() string         { return fmt.Sprintf("%v", e.Protocol) }
func (e AuthenticationError) Error() string   { return fmt.Sprintf("%v", e.Authentication) }
