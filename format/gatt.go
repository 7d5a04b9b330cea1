package format

import "fmt"

// Opcode identifies the HAP-over-GATT operation carried in a PDU request's
// ControlField+Opcode header (spec.md §4.6).
type Opcode uint8

const (
	SignatureRead        Opcode = 1
	Write                Opcode = 2
	Read                 Opcode = 3
	TimedWrite           Opcode = 4
	ExecuteWrite         Opcode = 5
	ServiceSignatureRead Opcode = 6
)

func (o Opcode) String() string {
	switch o {
	case SignatureRead:
		return "signature-read"
	case Write:
		return "write"
	case Read:
		return "read"
	case TimedWrite:
		return "timed-write"
	case ExecuteWrite:
		return "execute-write"
	case ServiceSignatureRead:
		return "service-signature-read"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

// Status is the one-byte result code in a HAP-over-GATT PDU response.
type Status uint8

const (
	StatusSuccess                  Status = 0x00
	StatusUnsupportedPDU           Status = 0x01
	StatusMaxProcedures            Status = 0x02
	StatusInsufficientAuthorization Status = 0x03
	StatusInvalidInstanceID        Status = 0x04
	StatusInsufficientAuthentication Status = 0x05
	StatusInvalidRequest           Status = 0x06
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnsupportedPDU:
		return "unsupported-pdu"
	case StatusMaxProcedures:
		return "max-procedures"
	case StatusInsufficientAuthorization:
		return "insufficient-authorization"
	case StatusInvalidInstanceID:
		return "invalid-instance-id"
	case StatusInsufficientAuthentication:
		return "insufficient-authentication"
	case StatusInvalidRequest:
		return "invalid-request"
	default:
		return fmt.Sprintf("status(%#02x)", uint8(s))
	}
}

// Perm bit masks for the 16-bit little-endian HAP-over-GATT characteristic
// permission field, and their JSON "perms" array tokens.
const (
	permAdditionalAuth Perm = 0x0004
	permTimedWrite     Perm = 0x0008
	permPairedRead     Perm = 0x0010
	permPairedWrite    Perm = 0x0020
	permHidden         Perm = 0x0040
	permEvents1        Perm = 0x0080
	permEvents2        Perm = 0x0100
)

// Perm is the raw 16-bit permission bitmask.
type Perm uint16

// Tokens decodes the bitmask into the HAP JSON perms tokens. 0x0080 and
// 0x0100 both map to a single "ev" token — setting either or both yields
// "ev" exactly once (spec.md §8 "GATT perms decoding").
func (p Perm) Tokens() []string {
	var out []string
	if p&permAdditionalAuth != 0 {
		out = append(out, "aa")
	}
	if p&permTimedWrite != 0 {
		out = append(out, "tw")
	}
	if p&permPairedRead != 0 {
		out = append(out, "pr")
	}
	if p&permPairedWrite != 0 {
		out = append(out, "pw")
	}
	if p&permHidden != 0 {
		out = append(out, "hd")
	}
	if p&(permEvents1|permEvents2) != 0 {
		out = append(out, "ev")
	}
	return out
}

// BTSIGFormatToHAP maps a Bluetooth SIG GATT characteristic presentation
// format code to its HAP format name, used while reconstructing the
// attribute database from GATT discovery.
var BTSIGFormatToHAP = map[byte]string{
	0x01: Bool,
	0x04: UInt8,
	0x06: UInt16,
	0x08: UInt32,
	0x0A: Int,   // 8-bit signed, widened
	0x0C: Int,   // 16-bit signed, widened
	0x10: Int,   // 32-bit signed
	0x14: Float, // IEEE-754 32-bit float widened to float64
	0x19: String,
	0x1B: Data,
}

// BTSIGUnitToHAP maps a Bluetooth SIG unit UUID's low 16 bits to the HAP
// "unit" string.
var BTSIGUnitToHAP = map[uint16]string{
	0x2700: "unitless",
	0x272F: "celsius",
	0x2763: "arcdegrees",
	0x27AD: "percentage",
	0x2731: "seconds",
	0x2703: "lux",
}

// HTTPStatusMessage is the reason phrase HAP expects for the given
// HAP-over-HTTP status code, mirroring the subset of HTTP/1.1 statuses used
// by accessories.
func HTTPStatusMessage(code int) string {
	switch code {
	case 200:
		return "OK"
	case 204:
		return "No Content"
	case 207:
		return "Multi-Status"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 422:
		return "Unprocessable Entity"
	case 429:
		return "Too Many Requests"
	case 470:
		return "Connection Authorization Required"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
