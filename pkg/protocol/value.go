package protocol

import (
	"errors"
	"fmt"
)

// Wire type codes for Value, per the relay service's v18 format.
const (
	typeNull           byte = 42
	typeByte           byte = 98
	typeShort          byte = 115
	typeIntZero        byte = 30
	typeInt1           byte = 11
	typeInt2           byte = 13
	typeInt1Neg        byte = 12
	typeInt2Neg        byte = 14
	typeCompressedInt  byte = 9
	typeFloatZero      byte = 0 // spec.md §4.2 leaves this code unassigned; never produced by this client, accepted on read as Int(0)
	typeString         byte = 7
	typeStringArray    byte = 6 // spec.md §4.2 leaves this code unassigned; chosen outside the named/reserved ranges
)

// ErrUnsupportedType is returned when decoding a wire type code in the
// custom-type reserved range 128..=228.
var ErrUnsupportedType = errors.New("protocol: unsupported wire type")

// Kind identifies which field of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindByte
	KindInt
	KindString
	KindStringArray
)

// Value is a tagged union over the scalar and array types the relay
// protocol exchanges. Only one of Byte/Int/Str/Strs is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind
	Byte byte
	Int  int32
	Str  string
	Strs []string
}

// NullValue constructs an absent Value.
func NullValue() Value { return Value{Kind: KindNull} }

// IntValue constructs an integer Value.
func IntValue(n int32) Value { return Value{Kind: KindInt, Int: n} }

// StringValue constructs a string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// StringArrayValue constructs a string-array Value.
func StringArrayValue(ss []string) Value { return Value{Kind: KindStringArray, Strs: ss} }

func encodeZigZag32(n int32) uint32 {
	return uint32((n << 1) ^ (n >> 31))
}

func decodeZigZag32(n uint32) int32 {
	return int32(n>>1) ^ -int32(n&1)
}

func writeVarint(buf *Buffer, v uint32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
			buf.WriteByte(b)
			continue
		}
		buf.WriteByte(b)
		return
	}
}

func readVarint(buf *Buffer) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := buf.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 35 {
			return 0, fmt.Errorf("protocol: varint too long")
		}
	}
}

func writeUshort(buf *Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}

func readUshort(buf *Buffer) (uint16, error) {
	lo, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}
	hi, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

// writeInt emits the most compact encoding for n, per §4.2's producer
// rule: IntZero, then Int1/Int1_ up to magnitude 255, then Int2/Int2_ up
// to magnitude 65535, then CompressedInt.
func writeInt(buf *Buffer, n int32) {
	switch {
	case n == 0:
		buf.WriteByte(typeIntZero)
	case n > 0 && n <= 255:
		buf.WriteByte(typeInt1)
		buf.WriteByte(byte(n))
	case n > 0 && n <= 65535:
		buf.WriteByte(typeInt2)
		writeUshort(buf, uint16(n))
	case n < 0 && n >= -255:
		buf.WriteByte(typeInt1Neg)
		buf.WriteByte(byte(-n))
	case n < 0 && n >= -65535:
		buf.WriteByte(typeInt2Neg)
		writeUshort(buf, uint16(-n))
	default:
		buf.WriteByte(typeCompressedInt)
		writeVarint(buf, encodeZigZag32(n))
	}
}

// writeString emits a type-tagged, varint-length-prefixed UTF-8 string.
// Panics if the string exceeds the protocol's 32767-byte limit, matching
// the original implementation's hard assertion on this invariant.
func writeString(buf *Buffer, s string) {
	buf.WriteByte(typeString)
	writeUntaggedString(buf, s)
}

// writeUntaggedString emits a bare varint-length-prefixed UTF-8 string
// with no type tag, matching read_string_array's per-element shape:
// a StringArray carries one array-level type tag, not one per element.
// Panics if the string exceeds the protocol's 32767-byte limit, matching
// the original implementation's hard assertion on this invariant.
func writeUntaggedString(buf *Buffer, s string) {
	if len(s) > 32767 {
		panic("protocol: string length exceeds maximum allowed length")
	}
	writeVarint(buf, uint32(len(s)))
	buf.Write([]byte(s))
}

// WriteValue serializes v with its type tag.
func WriteValue(buf *Buffer, v Value) {
	switch v.Kind {
	case KindNull:
		buf.WriteByte(typeNull)
	case KindByte:
		buf.WriteByte(typeByte)
		buf.WriteByte(v.Byte)
	case KindInt:
		writeInt(buf, v.Int)
	case KindString:
		writeString(buf, v.Str)
	case KindStringArray:
		buf.WriteByte(typeStringArray)
		writeVarint(buf, uint32(len(v.Strs)))
		for _, s := range v.Strs {
			writeUntaggedString(buf, s)
		}
	default:
		panic(fmt.Sprintf("protocol: unhandled value kind %d", v.Kind))
	}
}

// ReadValue decodes a Value whose wire type tag has already been read
// off the buffer and is passed in as wireType.
func ReadValue(buf *Buffer, wireType byte) (Value, error) {
	if wireType >= 128 && wireType <= 228 {
		return Value{}, ErrUnsupportedType
	}

	switch wireType {
	case typeNull:
		return NullValue(), nil
	case typeByte:
		b, err := buf.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindByte, Byte: b}, nil
	case typeShort:
		lo, err := buf.ReadByte()
		if err != nil {
			return Value{}, err
		}
		hi, err := buf.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int32(int16(uint16(lo) | uint16(hi)<<8))), nil
	case typeIntZero:
		return IntValue(0), nil
	case typeInt1:
		b, err := buf.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return IntValue(int32(b)), nil
	case typeInt1Neg:
		b, err := buf.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return IntValue(-int32(b)), nil
	case typeInt2:
		u, err := readUshort(buf)
		if err != nil {
			return Value{}, err
		}
		return IntValue(int32(u)), nil
	case typeInt2Neg:
		u, err := readUshort(buf)
		if err != nil {
			return Value{}, err
		}
		return IntValue(-int32(u)), nil
	case typeCompressedInt:
		u, err := readVarint(buf)
		if err != nil {
			return Value{}, err
		}
		return IntValue(decodeZigZag32(u)), nil
	case typeFloatZero:
		return IntValue(0), nil
	case typeString:
		n, err := readVarint(buf)
		if err != nil {
			return Value{}, err
		}
		if n == 0 {
			return StringValue(""), nil
		}
		data, err := buf.Read(int(n))
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(data)), nil
	case typeStringArray:
		n, err := readVarint(buf)
		if err != nil {
			return Value{}, err
		}
		strs := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			length, err := readVarint(buf)
			if err != nil {
				return Value{}, err
			}
			data, err := buf.Read(int(length))
			if err != nil {
				return Value{}, err
			}
			strs = append(strs, string(data))
		}
		return StringArrayValue(strs), nil
	default:
		return Value{}, fmt.Errorf("protocol: unrecognized wire type %d", wireType)
	}
}
