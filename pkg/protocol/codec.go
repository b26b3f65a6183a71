package protocol

import "errors"

// Errors surfaced by the inbound message dispatcher (§4.4).
var (
	ErrUnknownKind          = errors.New("protocol: unknown message kind")
	ErrEncryptionUnsupported = errors.New("protocol: encryption requested but not supported")
)

// MessageKind is the relay protocol's message-type ordinal, assigned
// starting at 0 in declaration order (Init, InitResponse, Operation, ...).
type MessageKind byte

const (
	KindInit MessageKind = iota
	KindInitResponse
	KindOperation
	KindOperationResponse
	KindEvent
	KindDisconnectReason
	KindInternalOperationRequest
	KindInternalOperationResponse
	KindMessage
	KindRawMessage
)

// Opcodes and parameter keys for the two operations the core uses.
const (
	OpcodePing       byte = 1
	OpcodeGetRegions byte = 220

	KeyPingClientTime byte = 1
	KeyPingServerTime byte = 2

	KeyAppID          byte = 224
	KeyRegionNames    byte = 210
	KeyRegionAddrs    byte = 230
)

// frameHeader is the two-byte prefix every outbound v18 frame carries.
var frameHeader = [2]byte{0xF3, 0x02}

// OperationResponse is the decoded form of a v18 operation response
// frame: opcode, numeric return code, an optional debug message, and the
// parameter payload.
type OperationResponse struct {
	OperationCode byte
	ReturnCode    int16
	DebugMessage  *string
	Payload       ParamMap
}

// IncomingFrame is the result of dispatching one inbound v18 message.
// Response is populated only for KindOperationResponse and
// KindInternalOperationResponse.
type IncomingFrame struct {
	Kind     MessageKind
	Response *OperationResponse
}

func writeOperationRequestPayload(buf *Buffer, opcode byte, params ParamMap) {
	buf.WriteByte(opcode)
	writeParamTable(buf, params)
}

// EncodeMessage builds a complete outbound v18 frame for opcode/params,
// tagged with msgType. The frame is always prefixed 0xF3 0x02; per
// §4.4 and the original implementation, the byte following 0xF3 is then
// compared against the numeric value of Operation (2) — against the
// frame's own leading byte (0xF3), which can never equal 2 — and is
// therefore always overwritten with msgType. This is specified verbatim
// rather than simplified to an unconditional overwrite: see DESIGN.md's
// notes on the "replace byte 2" quirk.
func EncodeMessage(opcode byte, params ParamMap, msgType MessageKind) []byte {
	buf := NewBufferCapacity(16)
	buf.Write(frameHeader[:])
	writeOperationRequestPayload(buf, opcode, params)

	out := make([]byte, buf.Length())
	copy(out, buf.Bytes())

	if out[0] != byte(KindOperation) {
		out[1] = byte(msgType)
	}
	return out
}

// DecodeOperationResponse decodes an operation-response payload:
// [opcode][return_code i16 LE][debug_msg_type][debug_msg][param_count][(key,type,value)*].
func DecodeOperationResponse(buf *Buffer) (*OperationResponse, error) {
	opcode, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	lo, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	hi, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	returnCode := int16(uint16(lo) | uint16(hi)<<8)

	debugType, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	debugVal, err := ReadValue(buf, debugType)
	if err != nil {
		return nil, err
	}
	var debugMessage *string
	if debugVal.Kind == KindString {
		s := debugVal.Str
		debugMessage = &s
	}

	payload, err := readParamTable(buf)
	if err != nil {
		return nil, err
	}

	return &OperationResponse{
		OperationCode: opcode,
		ReturnCode:    returnCode,
		DebugMessage:  debugMessage,
		Payload:       payload,
	}, nil
}

// DecodeIncoming dispatches one inbound message per §4.4: frames not
// beginning with 0xF3 or 0xFD are not operation frames and are silently
// discarded (nil, nil). Encryption is never supported; a flagged
// non-init-response frame is a fatal ErrEncryptionUnsupported. Unknown
// kinds are a fatal ErrUnknownKind.
func DecodeIncoming(buf *Buffer) (*IncomingFrame, error) {
	leading, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if leading != 0xF3 && leading != 0xFD {
		return nil, nil
	}

	kindByte, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := MessageKind(kindByte & 0x7F)
	encrypted := kindByte&0x80 != 0

	if kind != KindInitResponse {
		if encrypted {
			return nil, ErrEncryptionUnsupported
		}
		buf.Seek(2)
	}

	switch kind {
	case KindInitResponse:
		return &IncomingFrame{Kind: kind}, nil
	case KindInternalOperationResponse, KindOperationResponse:
		resp, err := DecodeOperationResponse(buf)
		if err != nil {
			return nil, err
		}
		return &IncomingFrame{Kind: kind, Response: resp}, nil
	case KindDisconnectReason:
		return &IncomingFrame{Kind: kind}, nil
	default:
		return nil, ErrUnknownKind
	}
}
