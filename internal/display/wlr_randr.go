package display

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bnema/touchbridge/internal/logger"
)

// WlrRandr lists monitors through the wlr-randr command
type WlrRandr struct {
	Command string
}

// NewWlrRandr checks that wlr-randr is installed
func NewWlrRandr() (*WlrRandr, error) {
	path, err := exec.LookPath("wlr-randr")
	if err != nil {
		return nil, fmt.Errorf("wlr-randr not found. Please install wlr-randr: https://gitlab.freedesktop.org/emersion/wlr-randr")
	}
	return &WlrRandr{Command: path}, nil
}

// Monitors runs wlr-randr --json
func (w *WlrRandr) Monitors(ctx context.Context) ([]*Monitor, error) {
	cmd := exec.CommandContext(ctx, w.Command, "--json")
	cmd.Env = sessionEnv()

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run wlr-randr: %w", err)
	}
	return ParseWlrRandr(output)
}

// sessionEnv points wlr-randr at the invoking user's compositor when running
// under sudo
func sessionEnv() []string {
	env := os.Environ()
	uid := os.Getenv("SUDO_UID")
	if uid == "" || os.Geteuid() != 0 {
		return env
	}

	runtimeDir := filepath.Join("/run/user", uid)
	env = append(env, "XDG_RUNTIME_DIR="+runtimeDir)

	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return env
	}
	entries, err := os.ReadDir(runtimeDir)
	if err != nil {
		logger.Warnf("Could not read socket directory %s: %v", runtimeDir, err)
		return env
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "wayland-") && !strings.HasSuffix(e.Name(), ".lock") {
			logger.Debugf("Detected WAYLAND_DISPLAY=%s", e.Name())
			return append(env, "WAYLAND_DISPLAY="+e.Name())
		}
	}
	return env
}

type wlrOutput struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Scale   float64 `json:"scale"`
	Modes   []struct {
		Width   int  `json:"width"`
		Height  int  `json:"height"`
		Current bool `json:"current"`
	} `json:"modes"`
	Position struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"position"`
}

// ParseWlrRandr decodes wlr-randr --json output. When no output sits at the
// origin the first one is marked primary.
func ParseWlrRandr(data []byte) ([]*Monitor, error) {
	var outputs []wlrOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}

	var monitors []*Monitor
	for _, o := range outputs {
		if !o.Enabled {
			continue
		}

		var width, height int
		for _, mode := range o.Modes {
			if mode.Current {
				width, height = mode.Width, mode.Height
				break
			}
		}
		if width == 0 || height == 0 {
			logger.Warnf("Skipping monitor %s with invalid dimensions: %dx%d", o.Name, width, height)
			continue
		}

		scale := o.Scale
		if scale == 0 {
			scale = 1.0
		}

		monitors = append(monitors, &Monitor{
			Name:   o.Name,
			X:      int32(o.Position.X),
			Y:      int32(o.Position.Y),
			Width:  int32(width),
			Height: int32(height),
			Scale:  scale,
		})
	}

	if len(monitors) == 0 {
		return nil, fmt.Errorf("no active monitors found")
	}

	primary := monitors[0]
	for _, m := range monitors {
		if m.Contains(0, 0) {
			primary = m
			break
		}
	}
	primary.Primary = true

	return monitors, nil
}
