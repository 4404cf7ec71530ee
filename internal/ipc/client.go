package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
)

// DefaultCallTimeout bounds a single request/response exchange
const DefaultCallTimeout = 5 * time.Second

// Client is a persistent connection to a helper. It implements protocol.Handle:
// the first transport failure marks it dead and closes Done.
type Client struct {
	mu      sync.Mutex
	conn    io.ReadWriteCloser
	timeout time.Duration
	dead    bool

	done      chan struct{}
	closeOnce sync.Once
	stopBeat  chan struct{}
}

var _ protocol.Handle = (*Client)(nil)

// NewClient wraps an established connection (unix socket, SSH session pipes, ...)
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{
		conn:     conn,
		timeout:  DefaultCallTimeout,
		done:     make(chan struct{}),
		stopBeat: make(chan struct{}),
	}
}

// Dial connects to the helper socket at path
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to helper: %w", err)
	}
	return NewClient(conn), nil
}

// SetTimeout changes the per-call deadline; zero disables it
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// StartHeartbeat pings the helper every interval so that a dead peer is noticed
// even while nobody is calling. Done closes on the first failed ping.
func (c *Client) StartHeartbeat(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Ping(); err != nil && protocol.IsPeerUnavailable(err) {
					return
				}
			case <-c.stopBeat:
				return
			case <-c.done:
				return
			}
		}
	}()
}

// Done is closed once the helper is known to be gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// InjectEvent implements protocol.Injector
func (c *Client) InjectEvent(x, y float64, action protocol.Action, pointer protocol.PointerID) error {
	_, err := c.call(NewInjectRequest(x, y, action, pointer))
	return err
}

// Pause implements protocol.Injector
func (c *Client) Pause() error {
	_, err := c.call(&Request{Op: OpPause})
	return err
}

// Resume implements protocol.Injector
func (c *Client) Resume() error {
	_, err := c.call(&Request{Op: OpResume})
	return err
}

// Reload implements protocol.Injector
func (c *Client) Reload() error {
	_, err := c.call(&Request{Op: OpReload})
	return err
}

// SharedConfig implements protocol.Injector
func (c *Client) SharedConfig() (protocol.SharedConfig, error) {
	resp, err := c.call(&Request{Op: OpSharedConfig})
	if err != nil {
		return protocol.SharedConfig{}, err
	}
	return protocol.SharedConfig{SwipeDelayMs: resp.SwipeDelayMs, Paused: resp.Paused}, nil
}

// Ping checks that the helper still answers
func (c *Client) Ping() error {
	_, err := c.call(&Request{Op: OpPing})
	return err
}

// Close closes the connection. It also fires Done.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return nil
	}
	close(c.stopBeat)
	return c.markDead()
}

// call sends one request and waits for its response
func (c *Client) call(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return nil, fmt.Errorf("%s: %w", req.Op, protocol.ErrPeerUnavailable)
	}

	if c.timeout > 0 {
		if nc, ok := c.conn.(net.Conn); ok {
			if err := nc.SetDeadline(time.Now().Add(c.timeout)); err != nil {
				logger.Warnf("Failed to set connection deadline: %v", err)
			}
		} else {
			// Pipes without deadlines are closed when the call overruns
			conn := c.conn
			timer := time.AfterFunc(c.timeout, func() {
				logger.Debugf("%s timed out after %s, closing the connection", req.Op, c.timeout)
				_ = conn.Close()
			})
			defer timer.Stop()
		}
	}

	if err := writeFrame(c.conn, req.Marshal()); err != nil {
		return nil, c.fail(req.Op, err)
	}

	data, err := readFrame(c.conn)
	if err != nil {
		return nil, c.fail(req.Op, err)
	}

	resp, err := UnmarshalResponse(data)
	if err != nil {
		// The stream is out of sync, nothing after this can be trusted
		return nil, c.fail(req.Op, err)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("helper: %s", resp.Error)
	}
	return resp, nil
}

// fail marks the client dead. Caller holds c.mu.
func (c *Client) fail(op Op, cause error) error {
	logger.Debugf("Helper connection lost during %s: %v", op, cause)
	_ = c.markDead()
	return fmt.Errorf("%s: %w: %v", op, protocol.ErrPeerUnavailable, cause)
}

// markDead closes the connection and fires Done once. Caller holds c.mu.
func (c *Client) markDead() error {
	c.dead = true
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		close(c.done)
	})
	return err
}
