package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/touchbridge/internal/aim"
	"github.com/bnema/touchbridge/internal/broker"
	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/input"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/bnema/touchbridge/internal/release"
	"github.com/bnema/touchbridge/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const acquireTimeout = 30 * time.Second

var aimNoTUI bool

var aimCmd = &cobra.Command{
	Use:   "aim",
	Short: "Drive the aim pointer from a mouse",
	Long: `Run a mouse aim session: relative motion from the input device drags a
touch contact around the configured center, and the left button taps the fixed
click position. The contact is lifted and put back on the center whenever it
leaves the bounded area.

A privileged helper is found, started or bound as needed. When the device is
grabbed, send SIGUSR1 or create the aim.release_file to end the session.`,
	RunE: runAim,
}

func init() {
	aimCmd.Flags().StringP("device", "d", "", "Input device (e.g. /dev/input/event5)")
	aimCmd.Flags().BoolP("grab", "g", true, "Grab the device so the desktop stops seeing it")
	aimCmd.Flags().Float64("width", 0, "Half width of the bounded area")
	aimCmd.Flags().Float64("height", 0, "Half height of the bounded area")
	aimCmd.Flags().BoolVar(&aimNoTUI, "no-tui", false, "Log to the terminal instead of showing the status line")

	// Bind flags to viper
	viper.BindPFlag("aim.device", aimCmd.Flags().Lookup("device"))
	viper.BindPFlag("aim.grab", aimCmd.Flags().Lookup("grab"))
	viper.BindPFlag("aim.width", aimCmd.Flags().Lookup("width"))
	viper.BindPFlag("aim.height", aimCmd.Flags().Lookup("height"))

	rootCmd.AddCommand(aimCmd)
}

// handleBroker is the part of the broker an aim session needs
type handleBroker interface {
	AcquireWait(ctx context.Context) (protocol.Handle, error)
	Tier() broker.Tier
}

// aimSession feeds input events into the engine and rebinds it when the
// helper goes away
type aimSession struct {
	broker  handleBroker
	engine  *aim.Engine
	timeout time.Duration
	notify  func(tea.Msg)
}

func newAimSession(b handleBroker, engine *aim.Engine) *aimSession {
	return &aimSession{
		broker:  b,
		engine:  engine,
		timeout: acquireTimeout,
		notify:  func(tea.Msg) {},
	}
}

// bind acquires a handle, hands it to the engine and places the aim contact on
// the center
func (s *aimSession) bind(ctx context.Context) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	h, err := s.broker.AcquireWait(acquireCtx)
	if err != nil {
		return err
	}

	s.engine.SetInterface(h)
	tier := s.broker.Tier()
	logger.Info("Aim session bound", "tier", tier)
	s.notify(ui.HandleAcquiredMsg{Tier: tier.String()})

	if shared, err := h.SharedConfig(); err == nil {
		s.notify(ui.PausedMsg{Paused: shared.Paused})
	}

	return s.engine.ResetPointer()
}

// eventSource is an input device read until ctx is done
type eventSource interface {
	Run(ctx context.Context, sink input.Sink) error
}

// run binds the session and feeds it from src. Cancelling ctx is a clean exit.
func (s *aimSession) run(ctx context.Context, src eventSource) error {
	err := s.bind(ctx)
	if err == nil {
		err = src.Run(ctx, s.sink(ctx))
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// sink returns the input callback. Only a stopped engine or a failed rebind
// ends the session; other injection errors are reported and skipped.
func (s *aimSession) sink(ctx context.Context) input.Sink {
	return func(code uint16, value int32) error {
		err := s.engine.HandleEvent(code, value, s.onButton)
		switch {
		case err == nil:
			if code == aim.CodeRelX || code == aim.CodeRelY {
				x, y := s.engine.Position()
				s.notify(ui.PositionMsg{X: x, Y: y})
			}
			return nil

		case errors.Is(err, aim.ErrStopped):
			return input.ErrStop

		case protocol.IsPeerUnavailable(err):
			logger.Warn("Helper went away, acquiring a new one", "err", err)
			s.notify(ui.HandleLostMsg{})
			if err := s.bind(ctx); err != nil {
				return fmt.Errorf("failed to rebind aim session: %w", err)
			}
			return nil

		default:
			logger.Warn("Injection failed", "err", err)
			s.notify(ui.ErrorMsg{Err: err})
			return nil
		}
	}
}

func (s *aimSession) onButton(code uint16, value int32) {
	logger.Debug("Secondary button", "code", code, "value", value)
}

func runAim(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	devicePath := cfg.Aim.Device
	if devicePath == "" {
		dev, err := input.FindPointerDevice()
		if err != nil {
			return fmt.Errorf("no input device configured: %w\nRun 'touchbridge setup' to pick one", err)
		}
		devicePath = dev.Path
	}

	reader, err := input.Open(devicePath, cfg.Aim.Grab)
	if err != nil {
		return err
	}
	defer reader.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	release.New(cfg.Aim.ReleaseFile, func(string) { cancel() }).Start(ctx)

	engine := aim.New(aim.FromConfig(cfg.Aim), nil)
	engine.SetDimensions(displaySize(ctx, cfg))

	b := broker.Default()
	session := newAimSession(b, engine)

	defer func() {
		if err := engine.Stop(); err != nil && !protocol.IsPeerUnavailable(err) {
			logger.Warnf("Failed to lift aim contact: %v", err)
		}
	}()

	if aimNoTUI {
		return session.run(ctx, reader)
	}

	model := ui.NewAimModel(reader.Name(), ui.AimControls{
		Pause:  func() { go b.Pause(ctx) },
		Resume: func() { go b.Resume(ctx) },
		Reload: func() { go b.Reload(ctx) },
	})
	p := tea.NewProgram(model, tea.WithContext(ctx))

	// Send blocks until the program reads it
	session.notify = func(msg tea.Msg) { go p.Send(msg) }

	logger.SetOutput(ui.PrintWriter{Program: p})

	runErr := make(chan error, 1)
	go func() {
		runErr <- session.run(ctx, reader)
		p.Quit()
	}()

	_, err = p.Run()
	cancel()
	logger.SetOutput(os.Stderr)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("status line failed: %w", err)
	}
	return <-runErr
}
