package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "touchbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	viper.Reset()
	SetConfigPath(path)
	t.Cleanup(func() {
		SetConfigPath("")
		Set(nil)
		viper.Reset()
	})
	return path
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("HOME", tmpDir)
		t.Setenv("SUDO_USER", "")

		oldWd, _ := os.Getwd()
		require.NoError(t, os.Chdir(tmpDir))
		defer os.Chdir(oldWd)

		viper.Reset()
		defer Set(nil)

		require.NoError(t, Init())

		c := Get()
		require.NotNil(t, c)
		assert.Equal(t, DefaultConfig.Shared.SwipeDelayMs, c.Shared.SwipeDelayMs)
		assert.Equal(t, "/run/touchbridge/helper.sock", c.Broker.SocketPath)
		assert.Equal(t, "sudo -n", c.Broker.ElevateCommand)
		assert.True(t, c.Aim.LimitedBounds)
	})

	t.Run("reads values from the config file", func(t *testing.T) {
		useConfigFile(t, `
[broker]
use_alternate = true
ssh_address = "10.0.0.2:2200"

[shared]
swipe_delay_ms = 120

[aim]
x_center = 500.0
y_center = 400.0
x_sensitivity = 1.5
non_linear = true
width = 100.0
height = 80.0
`)

		require.NoError(t, Init())

		c := Get()
		assert.True(t, c.Broker.UseAlternate)
		assert.Equal(t, "10.0.0.2:2200", c.Broker.SSHAddress)
		assert.Equal(t, 120, c.Shared.SwipeDelayMs)
		assert.Equal(t, 500.0, c.Aim.XCenter)
		assert.Equal(t, 400.0, c.Aim.YCenter)
		assert.Equal(t, 1.5, c.Aim.XSensitivity)
		assert.Equal(t, 1.0, c.Aim.YSensitivity, "unset keys keep their default")
		assert.True(t, c.Aim.NonLinear)
		assert.Equal(t, 100.0, c.Aim.Width)
		assert.Equal(t, 80.0, c.Aim.Height)
	})

	t.Run("rejects invalid TOML", func(t *testing.T) {
		useConfigFile(t, "[shared\nswipe_delay_ms = 1")

		err := Init()
		assert.Error(t, err)
	})
}

func TestReload(t *testing.T) {
	path := useConfigFile(t, "[shared]\nswipe_delay_ms = 10\n")
	require.NoError(t, Init())
	assert.Equal(t, 10, Get().Shared.SwipeDelayMs)

	require.NoError(t, os.WriteFile(path, []byte("[shared]\nswipe_delay_ms = 75\n"), 0644))
	require.NoError(t, Reload())
	assert.Equal(t, 75, Get().Shared.SwipeDelayMs)
}

func TestReloadWhileCheckingGrants(t *testing.T) {
	useConfigFile(t, "[helper]\nssh_granted_keys = [\"SHA256:abc\"]\n")
	require.NoError(t, Init())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, Reload())
		}()
		go func() {
			defer wg.Done()
			assert.True(t, IsSSHKeyGranted("SHA256:abc"))
			assert.NotNil(t, Get())
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"SHA256:abc"}, Get().Helper.SSHGrantedKeys)
}

func TestGetConfigPath(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		SetConfigPath("/tmp/custom.toml")
		defer SetConfigPath("")
		assert.Equal(t, "/tmp/custom.toml", GetConfigPath())
	})

	t.Run("normal user", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("running as root")
		}
		viper.Reset()
		t.Setenv("HOME", "/home/testuser")
		assert.Equal(t, "/home/testuser/.config/touchbridge/touchbridge.toml", GetConfigPath())
	})
}

func TestSSHKeyGrants(t *testing.T) {
	path := useConfigFile(t, "[helper]\nssh_enabled = true\n")
	require.NoError(t, Init())

	fp := "SHA256:abcdef"
	assert.False(t, IsSSHKeyGranted(fp))

	require.NoError(t, GrantSSHKey(fp))
	assert.True(t, IsSSHKeyGranted(fp))
	assert.Error(t, GrantSSHKey(fp), "granting twice is rejected")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), fp)

	require.NoError(t, RevokeSSHKey(fp))
	assert.False(t, IsSSHKeyGranted(fp))
	assert.Error(t, RevokeSSHKey(fp))
}

func TestSetUseAlternate(t *testing.T) {
	useConfigFile(t, "[broker]\nuse_alternate = false\n")
	require.NoError(t, Init())

	require.NoError(t, SetUseAlternate(true))
	assert.True(t, Get().Broker.UseAlternate)

	require.NoError(t, Reload())
	assert.True(t, Get().Broker.UseAlternate)
}

func TestSetAimDevice(t *testing.T) {
	useConfigFile(t, "")
	require.NoError(t, Init())

	require.NoError(t, SetAimDevice("/dev/input/event7"))
	require.NoError(t, Reload())
	assert.Equal(t, "/dev/input/event7", Get().Aim.Device)
}

func TestInitWithMissingExplicitFile(t *testing.T) {
	viper.Reset()
	SetConfigPath(filepath.Join(t.TempDir(), "absent.toml"))
	t.Cleanup(func() {
		SetConfigPath("")
		Set(nil)
		viper.Reset()
	})

	require.NoError(t, Init())
	assert.Equal(t, DefaultConfig.Helper.PidFile, Get().Helper.PidFile)
}
