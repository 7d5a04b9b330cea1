// Package gatt implements HAP-over-GATT: PDU request/response framing,
// instance-ID discovery, and the per-peripheral single-writer operation
// queue (spec.md §4.6). It talks to a Peripheral abstraction rather than a
// concrete BLE stack — no BLE central library appears anywhere in the
// example corpus this module was grounded on, so wiring one in would mean
// fabricating a dependency; see DESIGN.md.
package gatt

import (
	"encoding/binary"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/haperr"
)

// controlField bits for a HAP-over-GATT PDU request header.
const (
	controlFragmentFirst = 0x00
	controlFragmentCont  = 0x80
)

// Request is one HAP-over-GATT PDU request: a 1-byte control field, opcode,
// transaction ID, 2-byte little-endian characteristic instance ID, and an
// optional body (format.SignatureRead/Read carry no body; Write carries the
// TLV-encoded value).
type Request struct {
	TransactionID byte
	Opcode        format.Opcode
	InstanceID    uint16
	Body          []byte
}

// Marshal encodes r as the bytes of a single (unfragmented) PDU request.
// Fragmentation across multiple ATT writes, when Body exceeds the
// negotiated MTU, is the caller's responsibility; transport/gatt.Client
// sends each request as a single characteristic write.
func (r Request) Marshal() []byte {
	buf := make([]byte, 5, 5+len(r.Body))
	buf[0] = controlFragmentFirst
	buf[1] = byte(r.Opcode)
	buf[2] = r.TransactionID
	binary.LittleEndian.PutUint16(buf[3:5], r.InstanceID)
	buf = append(buf, r.Body...)
	return buf
}

// Response is one HAP-over-GATT PDU response.
type Response struct {
	TransactionID byte
	Status        format.Status
	Body          []byte
}

// ParseResponse decodes a (possibly reassembled) PDU response.
func ParseResponse(buf []byte) (Response, error) {
	if len(buf) < 3 {
		return Response{}, haperr.Proto("GATT PDU response shorter than header", nil)
	}
	// buf[0] is the control field; byte 1 is the transaction ID echoed
	// back, byte 2 the status.
	resp := Response{
		TransactionID: buf[1],
		Status:        format.Status(buf[2]),
	}
	if len(buf) > 3 {
		// bytes 3:5 are a body-length field (little-endian uint16) when
		// present; anything after that is the TLV body.
		if len(buf) < 5 {
			return Response{}, haperr.Proto("GATT PDU response body length truncated", nil)
		}
		n := binary.LittleEndian.Uint16(buf[3:5])
		if len(buf) < 5+int(n) {
			return Response{}, haperr.Proto("GATT PDU response shorter than declared body length", nil)
		}
		resp.Body = buf[5 : 5+int(n)]
	}
	return resp, nil
}

// Reassemble concatenates a sequence of raw indication/read fragments into
// one logical PDU response buffer, ready for ParseResponse. The first
// fragment keeps its control byte at position 0 (ParseResponse reads the
// transaction ID and status relative to it); continuations have
// controlFragmentCont set in their own control byte, which is stripped
// before appending. Reassembly stops at the first fragment that isn't a
// continuation, or when fragments run out.
func Reassemble(fragments [][]byte) []byte {
	var out []byte
	for i, frag := range fragments {
		if len(frag) == 0 {
			continue
		}
		if i == 0 {
			out = append(out, frag...)
			continue
		}
		if frag[0]&controlFragmentCont == 0 {
			break
		}
		out = append(out, frag[1:]...)
	}
	return out
}
