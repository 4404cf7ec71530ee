package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/ipc"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
)

// KeyringService is the keyring service under which key passphrases are stored
const KeyringService = "touchbridge"

// DialOptions describes how to reach the helper's SSH endpoint
type DialOptions struct {
	Address        string
	User           string
	PrivateKeyPath string // empty picks ~/.ssh/id_ed25519 or ~/.ssh/id_rsa
	// SHA256 fingerprint of the helper host key. Empty accepts any host key.
	HostFingerprint string
	Timeout         time.Duration
}

// DialSSH opens an SSH session to the helper and returns a protocol client
// over it. A key without a grant on the helper yields ErrAuthorizationDenied.
func DialSSH(ctx context.Context, opts DialOptions) (*ipc.Client, error) {
	keyPath := opts.PrivateKeyPath
	if keyPath == "" {
		keyPath = DefaultPrivateKeyPath()
	}
	if keyPath == "" {
		return nil, fmt.Errorf("no SSH private key found")
	}

	signer, err := LoadSigner(keyPath)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback(opts.HostFingerprint),
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH endpoint: %w", err)
	}

	// The handshake and session setup are bounded by ctx and the timeout
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, opts.Address, clientConfig)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("SSH handshake abandoned: %w", ctx.Err())
		}
		if isAuthFailure(err) {
			return nil, fmt.Errorf("%w: %v", protocol.ErrAuthorizationDenied, err)
		}
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to start SSH session: %w", err)
	}

	if !stop() {
		_ = client.Close()
		return nil, fmt.Errorf("SSH session setup abandoned: %w", ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	sc := &sessionConn{Reader: stdout, Writer: stdin, session: session, client: client}
	c := ipc.NewClient(sc)

	// Connection loss is a peer death
	go func() {
		_ = client.Wait()
		_ = sc.Close()
		_ = c.Close()
	}()

	logger.Debugf("SSH session to %s established", opts.Address)
	return c, nil
}

// sessionConn adapts the pipes of an SSH session to io.ReadWriteCloser
type sessionConn struct {
	io.Reader
	io.Writer

	session   *ssh.Session
	client    *ssh.Client
	closeOnce sync.Once
	closeErr  error
}

func (c *sessionConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.session.Close()
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

// LoadSigner parses a private key. Encrypted keys are opened with the
// passphrase stored in the system keyring for that key path.
func LoadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	passphrase, err := keyring.Get(KeyringService, path)
	if err != nil {
		return nil, fmt.Errorf("private key %s is encrypted and no passphrase is stored: %w", path, err)
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}
	return signer, nil
}

// StorePassphrase saves the passphrase of an encrypted key in the system keyring
func StorePassphrase(keyPath, passphrase string) error {
	if err := keyring.Set(KeyringService, keyPath, passphrase); err != nil {
		return fmt.Errorf("failed to store passphrase: %w", err)
	}
	return nil
}

// ForgetPassphrase removes a stored passphrase
func ForgetPassphrase(keyPath string) error {
	if err := keyring.Delete(KeyringService, keyPath); err != nil {
		return fmt.Errorf("failed to delete passphrase: %w", err)
	}
	return nil
}

// DefaultPrivateKeyPath returns ~/.ssh/id_ed25519 or ~/.ssh/id_rsa, whichever exists
func DefaultPrivateKeyPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	for _, name := range []string{"id_ed25519", "id_rsa"} {
		path := filepath.Join(homeDir, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func hostKeyCallback(fingerprint string) ssh.HostKeyCallback {
	if fingerprint == "" {
		return ssh.InsecureIgnoreHostKey()
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if got := ssh.FingerprintSHA256(key); got != fingerprint {
			return fmt.Errorf("host key mismatch for %s: got %s", hostname, got)
		}
		return nil
	}
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}
