package network

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func startSSHServer(t *testing.T, inj protocol.Injector, granted ...string) *SSHServer {
	t.Helper()

	grants := make(map[string]bool)
	for _, fp := range granted {
		grants[fp] = true
	}

	hostKey := filepath.Join(t.TempDir(), "host_key")
	srv := NewSSHServer("127.0.0.1:0", hostKey, inj, WithGrantCheck(func(fp string) bool {
		return grants[fp]
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return srv
}

func TestSSHGrantedKeyRoundTrip(t *testing.T) {
	keyPath, signer := generateTestKey(t, t.TempDir(), "")
	inj := &fakeInjector{swipe: 70}
	srv := startSSHServer(t, inj, Fingerprint(signer.PublicKey()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialSSH(ctx, DialOptions{
		Address:        srv.Addr(),
		User:           "touchbridge",
		PrivateKeyPath: keyPath,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.InjectEvent(10, 20, protocol.ActionDown, protocol.PointerAim))
	require.NoError(t, client.InjectEvent(10, 20, protocol.ActionUp, protocol.PointerAim))

	shared, err := client.SharedConfig()
	require.NoError(t, err)
	assert.Equal(t, 70, shared.SwipeDelayMs)
	assert.Equal(t, 2, inj.count())

	assert.Eventually(t, func() bool { return srv.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSSHUngrantedKeyIsDenied(t *testing.T) {
	keyPath, _ := generateTestKey(t, t.TempDir(), "")
	srv := startSSHServer(t, &fakeInjector{}, "SHA256:someone-else")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := DialSSH(ctx, DialOptions{
		Address:        srv.Addr(),
		User:           "touchbridge",
		PrivateKeyPath: keyPath,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrAuthorizationDenied))
}

func TestSSHServerStopKillsSessions(t *testing.T) {
	keyPath, signer := generateTestKey(t, t.TempDir(), "")
	srv := startSSHServer(t, &fakeInjector{}, Fingerprint(signer.PublicKey()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := DialSSH(ctx, DialOptions{Address: srv.Addr(), User: "touchbridge", PrivateKeyPath: keyPath})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping())

	srv.Stop()

	select {
	case <-client.Done():
	case <-time.After(3 * time.Second):
		// The next call notices the dead peer
		assert.True(t, protocol.IsPeerUnavailable(client.Ping()))
	}
}

func TestSSHHostKeyPinning(t *testing.T) {
	keyPath, signer := generateTestKey(t, t.TempDir(), "")
	srv := startSSHServer(t, &fakeInjector{}, Fingerprint(signer.PublicKey()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := DialSSH(ctx, DialOptions{
		Address:         srv.Addr(),
		User:            "touchbridge",
		PrivateKeyPath:  keyPath,
		HostFingerprint: "SHA256:not-the-helper",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host key mismatch")
	assert.False(t, errors.Is(err, protocol.ErrAuthorizationDenied))
}

func TestSSHHandshakeBoundedByContext(t *testing.T) {
	keyPath, _ := generateTestKey(t, t.TempDir(), "")

	// Accepts connections but never speaks SSH
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = DialSSH(ctx, DialOptions{
		Address:        ln.Addr().String(),
		User:           "touchbridge",
		PrivateKeyPath: keyPath,
		Timeout:        30 * time.Second,
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadSignerWithKeyringPassphrase(t *testing.T) {
	keyring.MockInit()

	keyPath, signer := generateTestKey(t, t.TempDir(), "hunter2")

	_, err := LoadSigner(keyPath)
	require.Error(t, err, "no passphrase stored yet")

	require.NoError(t, StorePassphrase(keyPath, "hunter2"))
	loaded, err := LoadSigner(keyPath)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(signer.PublicKey()), Fingerprint(loaded.PublicKey()))

	require.NoError(t, ForgetPassphrase(keyPath))
	_, err = LoadSigner(keyPath)
	assert.Error(t, err)
}

func TestLoadSignerMissingFile(t *testing.T) {
	_, err := LoadSigner(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestGrants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "touchbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[helper]\nssh_granted_keys = []\n"), 0644))

	viper.Reset()
	config.SetConfigPath(path)
	t.Cleanup(func() {
		config.SetConfigPath("")
		config.Set(nil)
		viper.Reset()
	})
	require.NoError(t, config.Init())

	keyPath, signer := generateTestKey(t, t.TempDir(), "")
	want := Fingerprint(signer.PublicKey())

	fp, err := GrantKey(keyPath + ".pub")
	require.NoError(t, err)
	assert.Equal(t, want, fp)
	assert.True(t, IsGranted(want))

	_, err = GrantKey(keyPath + ".pub")
	assert.Error(t, err, "granting twice fails")

	require.NoError(t, RevokeKey(want))
	assert.False(t, IsGranted(want))
	assert.Error(t, RevokeKey(want))

	_, err = FingerprintFile(keyPath)
	assert.Error(t, err, "a private key is not an authorized key line")
}
