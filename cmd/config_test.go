package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(func() {
		config.SetConfigPath("")
		config.Set(nil)
		configPath = ""
		viper.Reset()
	})
}

func TestConfigInit(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "touchbridge.toml")

	t.Run("creates config file when it doesn't exist", func(t *testing.T) {
		_, err := executeCommand(rootCmd, "--config", path, "config", "init")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "socket_path")
	})

	t.Run("doesn't overwrite existing config without force", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("[shared]\nswipe_delay_ms = 75\n"), 0644))

		_, err := executeCommand(rootCmd, "--config", path, "config", "init")
		require.NoError(t, err)

		data, _ := os.ReadFile(path)
		assert.Equal(t, "[shared]\nswipe_delay_ms = 75\n", string(data))
	})

	t.Run("overwrites with force flag", func(t *testing.T) {
		_, err := executeCommand(rootCmd, "--config", path, "config", "init", "--force")
		require.NoError(t, err)

		data, _ := os.ReadFile(path)
		content := string(data)
		assert.Contains(t, content, "swipe_delay_ms = 75", "values from the file are kept")
		assert.Contains(t, content, "elevate_command")
	})
}

func TestConfigPath(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "custom.toml")

	out, err := executeCommand(rootCmd, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))
}

func TestConfigFileSetsLogLevel(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "touchbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"debug\"\n"), 0644))

	_, err := executeCommand(rootCmd, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "debug", config.Get().Logging.LogLevel)
}
