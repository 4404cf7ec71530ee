package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bnema/touchbridge/internal/protocol"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single message; requests are a handful of scalars
const MaxFrameSize = 64 * 1024

// Op is the remote operation carried by a request
type Op int32

const (
	OpInject       Op = 1
	OpPause        Op = 2
	OpResume       Op = 3
	OpReload       Op = 4
	OpSharedConfig Op = 5
	OpPing         Op = 6
)

func (o Op) String() string {
	switch o {
	case OpInject:
		return "inject"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpReload:
		return "reload"
	case OpSharedConfig:
		return "shared_config"
	case OpPing:
		return "ping"
	default:
		return fmt.Sprintf("op(%d)", int32(o))
	}
}

// Request field numbers
const (
	fieldOp      protowire.Number = 1
	fieldX       protowire.Number = 2
	fieldY       protowire.Number = 3
	fieldAction  protowire.Number = 4
	fieldPointer protowire.Number = 5
)

// Response field numbers
const (
	fieldError        protowire.Number = 1
	fieldSwipeDelayMs protowire.Number = 2
	fieldPaused       protowire.Number = 3
)

// Request is one remote call
type Request struct {
	Op      Op
	X       float64
	Y       float64
	Action  protocol.Action
	Pointer protocol.PointerID
}

// Response answers one request. An empty Error means success.
type Response struct {
	Error        string
	SwipeDelayMs int
	Paused       bool
}

// NewInjectRequest creates an inject request
func NewInjectRequest(x, y float64, action protocol.Action, pointer protocol.PointerID) *Request {
	return &Request{Op: OpInject, X: x, Y: y, Action: action, Pointer: pointer}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err error) *Response {
	return &Response{Error: err.Error()}
}

// Marshal encodes the request in protobuf wire format
func (r *Request) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Op))

	if r.Op != OpInject {
		return b
	}

	b = protowire.AppendTag(b, fieldX, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.X))
	b = protowire.AppendTag(b, fieldY, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.Y))
	b = protowire.AppendTag(b, fieldAction, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.Action)))
	b = protowire.AppendTag(b, fieldPointer, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.Pointer)))
	return b
}

// UnmarshalRequest decodes a request, skipping unknown fields
func UnmarshalRequest(data []byte) (*Request, error) {
	req := &Request{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldOp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.Op = Op(int32(v))
			return n, nil
		case num == fieldX && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			req.X = math.Float64frombits(v)
			return n, nil
		case num == fieldY && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			req.Y = math.Float64frombits(v)
			return n, nil
		case num == fieldAction && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.Action = protocol.Action(int32(v))
			return n, nil
		case num == fieldPointer && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			req.Pointer = protocol.PointerID(int32(v))
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Op == 0 {
		return nil, fmt.Errorf("failed to decode request: missing op")
	}
	return req, nil
}

// Marshal encodes the response in protobuf wire format
func (r *Response) Marshal() []byte {
	var b []byte
	if r.Error != "" {
		b = protowire.AppendTag(b, fieldError, protowire.BytesType)
		b = protowire.AppendString(b, r.Error)
	}
	if r.SwipeDelayMs != 0 {
		b = protowire.AppendTag(b, fieldSwipeDelayMs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(r.SwipeDelayMs)))
	}
	if r.Paused {
		b = protowire.AppendTag(b, fieldPaused, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b
}

// UnmarshalResponse decodes a response, skipping unknown fields
func UnmarshalResponse(data []byte) (*Response, error) {
	resp := &Response{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldError && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			resp.Error = v
			return n, nil
		case num == fieldSwipeDelayMs && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.SwipeDelayMs = int(int64(v))
			return n, nil
		case num == fieldPaused && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.Paused = protowire.DecodeBool(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

// walkFields iterates over the fields of a message. fn consumes the field value
// and returns the number of bytes it used (negative on malformed input).
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

// readFrame reads one length-prefixed message
func readFrame(r io.Reader) ([]byte, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}
	return data, nil
}

// writeFrame writes one length-prefixed message
func writeFrame(w io.Writer, data []byte) error {
	// Length prefix and payload in a single write
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) //nolint:gosec // bounded by MaxFrameSize
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
