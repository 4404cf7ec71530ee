package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsChild(t *testing.T) {
	t.Setenv(DaemonEnvVar, "")
	assert.False(t, IsChild())

	t.Setenv(DaemonEnvVar, "1")
	assert.True(t, IsChild())
}

func TestStop(t *testing.T) {
	t.Run("missing pid file", func(t *testing.T) {
		err := Stop(filepath.Join(t.TempDir(), "helper.pid"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not running")
	})

	t.Run("garbage pid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "helper.pid")
		require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))
		assert.Error(t, Stop(path))
	})

	t.Run("stale pid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "helper.pid")
		// Larger than pid_max, no such process
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<23)), 0644))
		assert.Error(t, Stop(path))
	})
}

func TestReleaseWithoutDetach(t *testing.T) {
	assert.NoError(t, Release())
}
