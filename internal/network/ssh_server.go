// Package network carries the injection protocol over SSH for the alternate
// broker tier: the helper accepts pre-granted keys only.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/ipc"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/google/uuid"
	gossh "golang.org/x/crypto/ssh"
)

// GrantCheck reports whether a key fingerprint was granted beforehand
type GrantCheck func(fingerprint string) bool

// SSHServer serves the injection protocol to SSH sessions
type SSHServer struct {
	address     string
	hostKeyPath string
	injector    protocol.Injector
	isGranted   GrantCheck

	sshServer *ssh.Server
	listener  net.Listener

	// Active sessions
	mu       sync.Mutex
	sessions map[string]ssh.Session

	// Lifecycle
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	OnSessionStarted func(id, fingerprint string)
	OnSessionEnded   func(id string)
}

// SSHOption configures an SSHServer
type SSHOption func(*SSHServer)

// WithGrantCheck replaces the config-backed grant store
func WithGrantCheck(check GrantCheck) SSHOption {
	return func(s *SSHServer) { s.isGranted = check }
}

// NewSSHServer creates a server for address. The host key is generated at
// hostKeyPath if it does not exist yet.
func NewSSHServer(address, hostKeyPath string, injector protocol.Injector, opts ...SSHOption) *SSHServer {
	s := &SSHServer{
		address:     address,
		hostKeyPath: hostKeyPath,
		injector:    injector,
		isGranted:   config.IsSSHKeyGranted,
		sessions:    make(map[string]ssh.Session),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening for SSH connections
func (s *SSHServer) Start(ctx context.Context) error {
	server, err := wish.NewServer(
		wish.WithAddress(s.address),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			s.sessionHandler(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.sshServer = server
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		logger.Infof("SSH endpoint listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stop:
		}
	}()

	return nil
}

// Addr returns the listening address once started
func (s *SSHServer) Addr() string {
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

// Stop shuts down the SSH server and every open session
func (s *SSHServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		s.sessions = make(map[string]ssh.Session)
		s.mu.Unlock()

		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.sshServer.Shutdown(ctx); err != nil {
				_ = s.sshServer.Close()
			}
		}

		s.wg.Wait()
	})
}

// SessionCount returns the number of open sessions
func (s *SSHServer) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// publicKeyAuth accepts granted keys only. There is no interactive approval.
func (s *SSHServer) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	addr := ctx.RemoteAddr().String()

	if s.isGranted != nil && s.isGranted(fingerprint) {
		logger.Debugf("SSH key granted addr=%s key=%s", addr, fingerprint)
		return true
	}

	logger.Infof("SSH key has no grant addr=%s user=%s key=%s", addr, ctx.User(), fingerprint)
	return false
}

func (s *SSHServer) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s", sess.RemoteAddr())
		}
	}
}

func (s *SSHServer) sessionHandler() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			id := uuid.NewString()

			var fingerprint string
			if sess.PublicKey() != nil {
				fingerprint = gossh.FingerprintSHA256(sess.PublicKey())
			}

			s.mu.Lock()
			s.sessions[id] = sess
			s.mu.Unlock()

			if s.OnSessionStarted != nil {
				s.OnSessionStarted(id, fingerprint)
			}

			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()

				if s.OnSessionEnded != nil {
					s.OnSessionEnded(id)
				}
			}()

			if err := ipc.Serve(sess.Context(), sess, s.injector, id); err != nil {
				logger.Debugf("SSH session %s closed: %v", id, err)
			}

			h(sess)
		}
	}
}
