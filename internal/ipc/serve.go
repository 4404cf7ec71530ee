package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
)

// Serve answers requests read from rw with the given injector until the peer
// hangs up or ctx is cancelled. It is shared by the unix socket server and the
// SSH session handler.
func Serve(ctx context.Context, rw io.ReadWriter, injector protocol.Injector, session string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := readFrame(rw)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Debugf("IPC session %s closed by peer", session)
				return nil
			}
			return err
		}

		var resp *Response
		req, err := UnmarshalRequest(data)
		if err != nil {
			resp = NewErrorResponse(err)
		} else {
			resp = Dispatch(injector, req)
		}

		if err := writeFrame(rw, resp.Marshal()); err != nil {
			return fmt.Errorf("failed to send response: %w", err)
		}
	}
}

// Dispatch runs a single request against injector
func Dispatch(injector protocol.Injector, req *Request) *Response {
	switch req.Op {
	case OpInject:
		if !req.Action.Valid() {
			return NewErrorResponse(fmt.Errorf("%w: %d", protocol.ErrInvalidAction, req.Action))
		}
		if err := injector.InjectEvent(req.X, req.Y, req.Action, req.Pointer); err != nil {
			return NewErrorResponse(err)
		}
		return &Response{}

	case OpPause:
		return errorOrOK(injector.Pause())

	case OpResume:
		return errorOrOK(injector.Resume())

	case OpReload:
		return errorOrOK(injector.Reload())

	case OpSharedConfig, OpPing:
		shared, err := injector.SharedConfig()
		if err != nil {
			return NewErrorResponse(err)
		}
		return &Response{SwipeDelayMs: shared.SwipeDelayMs, Paused: shared.Paused}

	default:
		return NewErrorResponse(fmt.Errorf("unknown operation: %s", req.Op))
	}
}

func errorOrOK(err error) *Response {
	if err != nil {
		return NewErrorResponse(err)
	}
	return &Response{}
}
