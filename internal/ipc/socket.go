package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/google/uuid"
)

// SocketServer exposes an injector on a unix socket, the well-known place
// unprivileged callers probe for a running helper
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	mode       os.FileMode
	ownerUID   int
	injector   protocol.Injector
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// SocketOption configures a SocketServer
type SocketOption func(*SocketServer)

// WithMode sets the permission bits of the socket file
func WithMode(mode os.FileMode) SocketOption {
	return func(s *SocketServer) { s.mode = mode }
}

// WithOwner hands the socket file to uid, typically the user who ran sudo
func WithOwner(uid int) SocketOption {
	return func(s *SocketServer) { s.ownerUID = uid }
}

// NewSocketServer creates a new socket server
func NewSocketServer(socketPath string, injector protocol.Injector, opts ...SocketOption) *SocketServer {
	s := &SocketServer{
		socketPath: socketPath,
		mode:       0600,
		ownerUID:   -1,
		injector:   injector,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the socket path
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	if err := os.Chmod(s.socketPath, s.mode); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	if s.ownerUID >= 0 {
		if err := os.Chown(s.socketPath, s.ownerUID, -1); err != nil {
			listener.Close()
			return fmt.Errorf("failed to set socket owner: %w", err)
		}
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server and waits for open sessions to finish
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

// acceptConnections accepts and handles incoming connections
func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection serves a single client connection
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	session := uuid.NewString()
	logger.Debug("New IPC connection established", "session", session)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the read loop on shutdown
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	if err := Serve(connCtx, conn, s.injector, session); err != nil && ctx.Err() == nil {
		logger.Debug("IPC session ended", "session", session, "err", err)
	}
}
