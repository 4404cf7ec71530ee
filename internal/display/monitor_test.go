package display

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLister struct {
	monitors []*Monitor
	err      error
}

func (f fixedLister) Monitors(context.Context) ([]*Monitor, error) {
	return f.monitors, f.err
}

const twoOutputs = `[
  {
    "name": "DP-1",
    "enabled": true,
    "scale": 1.0,
    "modes": [
      {"width": 1920, "height": 1080, "refresh": 60.0, "preferred": false, "current": false},
      {"width": 2560, "height": 1440, "refresh": 144.0, "preferred": true, "current": true}
    ],
    "position": {"x": 0, "y": 0}
  },
  {
    "name": "HDMI-A-1",
    "enabled": true,
    "scale": 0,
    "modes": [
      {"width": 1920, "height": 1080, "refresh": 60.0, "preferred": true, "current": true}
    ],
    "position": {"x": 2560, "y": 0}
  },
  {
    "name": "eDP-1",
    "enabled": false,
    "modes": [],
    "position": {"x": 0, "y": 0}
  }
]`

func TestParseWlrRandr(t *testing.T) {
	monitors, err := ParseWlrRandr([]byte(twoOutputs))
	require.NoError(t, err)
	require.Len(t, monitors, 2)

	assert.Equal(t, "DP-1", monitors[0].Name)
	assert.Equal(t, int32(2560), monitors[0].Width)
	assert.Equal(t, int32(1440), monitors[0].Height)
	assert.True(t, monitors[0].Primary)

	assert.Equal(t, int32(2560), monitors[1].X)
	assert.Equal(t, 1.0, monitors[1].Scale)
	assert.False(t, monitors[1].Primary)
}

func TestParseWlrRandrFallsBackToFirstOutput(t *testing.T) {
	data := `[{"name": "DP-2", "enabled": true, "modes": [{"width": 1280, "height": 720, "current": true}], "position": {"x": 100, "y": 100}}]`

	monitors, err := ParseWlrRandr([]byte(data))
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.True(t, monitors[0].Primary)
}

func TestParseWlrRandrErrors(t *testing.T) {
	_, err := ParseWlrRandr([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseWlrRandr([]byte(`[{"name": "DP-1", "enabled": false}]`))
	assert.Error(t, err)

	_, err = ParseWlrRandr([]byte(`[{"name": "DP-1", "enabled": true, "modes": []}]`))
	assert.Error(t, err)
}

func TestPrimary(t *testing.T) {
	a := &Monitor{Name: "a"}
	b := &Monitor{Name: "b", Primary: true}

	assert.Nil(t, Primary(nil))
	assert.Equal(t, a, Primary([]*Monitor{a}))
	assert.Equal(t, b, Primary([]*Monitor{a, b}))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("detected", func(t *testing.T) {
		l := fixedLister{monitors: []*Monitor{{Width: 2560, Height: 1440, Primary: true}}}
		w, h := Resolve(ctx, l, 1920, 1080)
		assert.Equal(t, 2560, w)
		assert.Equal(t, 1440, h)
	})

	t.Run("fallback on error", func(t *testing.T) {
		w, h := Resolve(ctx, fixedLister{err: errors.New("no compositor")}, 1920, 1080)
		assert.Equal(t, 1920, w)
		assert.Equal(t, 1080, h)
	})

	t.Run("fallback on empty list", func(t *testing.T) {
		w, h := Resolve(ctx, fixedLister{}, 800, 600)
		assert.Equal(t, 800, w)
		assert.Equal(t, 600, h)
	})
}
