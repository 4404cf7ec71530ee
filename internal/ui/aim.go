package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages sent to AimModel by the aim session
type (
	// HandleAcquiredMsg reports a live handle and the tier that produced it
	HandleAcquiredMsg struct{ Tier string }
	// HandleLostMsg reports that the helper died
	HandleLostMsg struct{}
	// PositionMsg carries the aim pointer position
	PositionMsg struct{ X, Y float64 }
	// PausedMsg reports the pause state read from the helper
	PausedMsg struct{ Paused bool }
	// ErrorMsg shows an error line until the next update
	ErrorMsg struct{ Err error }
	// LogLineMsg is printed above the status line
	LogLineMsg struct{ Line string }
)

// AimControls are invoked from key presses. Nil entries are ignored.
type AimControls struct {
	Pause  func()
	Resume func()
	Reload func()
}

// AimModel is the inline status line of a running aim session
type AimModel struct {
	device   string
	controls AimControls
	spinner  spinner.Model

	live    bool
	tier    string
	paused  bool
	x, y    float64
	moves   int
	lastErr error
}

// NewAimModel creates the status line for device
func NewAimModel(device string, controls AimControls) *AimModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return &AimModel{
		device:   device,
		controls: controls,
		spinner:  s,
	}
}

// Init starts the spinner
func (m *AimModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles session messages and key presses
func (m *AimModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "p":
			if m.paused {
				call(m.controls.Resume)
			} else {
				call(m.controls.Pause)
			}
			m.paused = !m.paused
		case "r":
			call(m.controls.Reload)
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if !m.live {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case HandleAcquiredMsg:
		m.live = true
		m.tier = msg.Tier
		m.lastErr = nil

	case HandleLostMsg:
		m.live = false
		m.tier = ""
		return m, m.spinner.Tick

	case PositionMsg:
		m.x, m.y = msg.X, msg.Y
		m.moves++

	case PausedMsg:
		m.paused = msg.Paused

	case ErrorMsg:
		m.lastErr = msg.Err

	case LogLineMsg:
		return m, tea.Println(msg.Line)
	}

	return m, nil
}

// View renders the status line
func (m *AimModel) View() string {
	var parts []string

	parts = append(parts, TitleStyle.Render("TOUCHBRIDGE"))

	if m.live {
		parts = append(parts, SuccessStyle.Render("● "+m.tier))
	} else {
		parts = append(parts, ErrorStyle.Render(m.spinner.View()+" Acquiring helper"))
	}

	parts = append(parts, SubtleStyle.Render(m.device))
	parts = append(parts, TextStyle.Render(fmt.Sprintf("(%.0f, %.0f)", m.x, m.y)))

	if m.paused {
		parts = append(parts, WarningStyle.Bold(true).Render("PAUSED"))
	}

	parts = append(parts, strings.Join([]string{
		FormatControl("[p]", "pause"),
		FormatControl("[r]", "reload"),
		FormatControl("[q]", "quit"),
	}, " "))

	line := strings.Join(parts, SeparatorStyle.Render(" │ "))
	if m.lastErr != nil {
		line += "\n" + ErrorStyle.Render(IconError+" "+m.lastErr.Error())
	}
	return line + "\n"
}

// Moves returns the number of positions reported so far
func (m *AimModel) Moves() int {
	return m.moves
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// PrintWriter prints each write above the inline view of Program.
// Writes after the program exited are dropped.
type PrintWriter struct {
	Program *tea.Program
}

func (w PrintWriter) Write(b []byte) (int, error) {
	w.Program.Send(LogLineMsg{Line: strings.TrimRight(string(b), "\n")})
	return len(b), nil
}
