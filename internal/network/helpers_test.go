package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// generateTestKey writes an ed25519 key pair into dir and returns the private
// key path and the signer
func generateTestKey(t *testing.T, dir string, passphrase string) (string, ssh.Signer) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	}
	require.NoError(t, err)

	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	pubPath := keyPath + ".pub"
	require.NoError(t, os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(signer.PublicKey()), 0644))

	return keyPath, signer
}

type fakeInjector struct {
	mu       sync.Mutex
	injected []protocol.Action
	swipe    int
}

func (f *fakeInjector) InjectEvent(x, y float64, action protocol.Action, pointer protocol.PointerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injected = append(f.injected, action)
	return nil
}

func (f *fakeInjector) Pause() error  { return nil }
func (f *fakeInjector) Resume() error { return nil }
func (f *fakeInjector) Reload() error { return nil }

func (f *fakeInjector) SharedConfig() (protocol.SharedConfig, error) {
	return protocol.SharedConfig{SwipeDelayMs: f.swipe}, nil
}

func (f *fakeInjector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.injected)
}
