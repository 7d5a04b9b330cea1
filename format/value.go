package format

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrUnsupportedFormat signals an unknown format name.
type ErrUnsupportedFormat struct{ Format string }

func (e ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("format: unsupported characteristic format %q", e.Format)
}

// Known characteristic format names, as declared on a characteristic's
// "format" field in the attribute database.
const (
	Bool   = "bool"
	UInt8  = "uint8"
	UInt16 = "uint16"
	UInt32 = "uint32"
	UInt64 = "uint64"
	Int    = "int"
	Float  = "float"
	String = "string"
	Data   = "data"
)

// BufferToValue decodes a little-endian wire buffer into the Go value
// matching the declared HAP format. uint64 and float use native 64-bit
// arithmetic throughout — the source's 32-bit shift idiom for these two
// formats is a known overflow hazard this implementation avoids (spec.md §9
// Open Questions).
func BufferToValue(buf []byte, f string) (any, error) {
	switch f {
	case Bool:
		if len(buf) == 0 {
			return false, nil
		}
		return buf[0] != 0, nil
	case UInt8:
		if len(buf) == 0 {
			return uint8(0), nil
		}
		return buf[0], nil
	case UInt16:
		return binary.LittleEndian.Uint16(pad(buf, 2)), nil
	case UInt32:
		return binary.LittleEndian.Uint32(pad(buf, 4)), nil
	case UInt64:
		return binary.LittleEndian.Uint64(pad(buf, 8)), nil
	case Int:
		return int32(binary.LittleEndian.Uint32(pad(buf, 4))), nil
	case Float:
		// A 4-byte buffer is the IEEE-754 32-bit wire form, widened here.
		if len(buf) == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))), nil
		}
		bits := binary.LittleEndian.Uint64(pad(buf, 8))
		return math.Float64frombits(bits), nil
	case String:
		return string(buf), nil
	case Data:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	default:
		return nil, ErrUnsupportedFormat{f}
	}
}

// ValueToBuffer is the inverse of BufferToValue.
func ValueToBuffer(value any, f string) ([]byte, error) {
	switch f {
	case Bool:
		b, _ := value.(bool)
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case UInt8:
		v, err := toUint64(value)
		if err != nil {
			return nil, err
		}
		return []byte{byte(v)}, nil
	case UInt16:
		v, err := toUint64(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v))
		return buf, nil
	case UInt32:
		v, err := toUint64(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf, nil
	case UInt64:
		v, err := toUint64(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf, nil
	case Int:
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
		return buf, nil
	case Float:
		v, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		return buf, nil
	case String:
		s, _ := value.(string)
		return []byte(s), nil
	case Data:
		b, _ := value.([]byte)
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, ErrUnsupportedFormat{f}
	}
}

func pad(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf[:n]
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}

func toUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	case float64:
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("format: %T is not a numeric value", value)
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("format: %T is not a numeric value", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("format: %T is not a numeric value", value)
	}
}
