package ui

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderStatus(t *testing.T) {
	t.Run("live helper", func(t *testing.T) {
		out := RenderStatus(Status{
			Tier:       "cached-handle",
			Elevation:  "unknown",
			Live:       true,
			Paused:     true,
			SwipeDelay: 50,
			SocketPath: "/run/touchbridge/helper.sock",
			ConfigPath: "/etc/touchbridge/touchbridge.toml",
		})

		for _, want := range []string{"Helper reachable", "paused", "cached-handle", "50ms", "/run/touchbridge/helper.sock", "touchbridge.toml"} {
			if !strings.Contains(out, want) {
				t.Errorf("status output missing %q", want)
			}
		}
	})

	t.Run("no helper", func(t *testing.T) {
		out := RenderStatus(Status{Err: errors.New("acquisition abandoned")})

		if !strings.Contains(out, "No helper") {
			t.Error("status output missing dead state")
		}
		if strings.Contains(out, "Swipe delay") {
			t.Error("shared config should be hidden without a helper")
		}
		if !strings.Contains(out, "acquisition abandoned") {
			t.Error("status output missing error")
		}
	})
}
