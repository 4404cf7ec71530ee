package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/touchbridge/internal/broker"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/spf13/cobra"
)

var controlTimeout time.Duration

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Suspend injection without lifting contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd.Context(), broker.Default(), "pause", protocol.Injector.Pause)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume injection",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd.Context(), broker.Default(), "resume", protocol.Injector.Resume)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the helper re-read its configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runControl(cmd.Context(), broker.Default(), "reload", protocol.Injector.Reload)
	},
}

func init() {
	for _, c := range []*cobra.Command{pauseCmd, resumeCmd, reloadCmd} {
		c.Flags().DurationVarP(&controlTimeout, "timeout", "t", 10*time.Second, "Give up after this long")
		rootCmd.AddCommand(c)
	}
}

// acquirer delivers handles to a callback, see broker.Broker.Acquire
type acquirer interface {
	Acquire(ctx context.Context, exec broker.Executor, cb broker.Callback)
}

// runControl sends one control call to the helper. The process exits when the
// call returns, so the call is awaited up to the give-up timeout.
func runControl(ctx context.Context, b acquirer, name string, op func(protocol.Injector) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	done := make(chan error, 1)
	b.Acquire(ctx, broker.Goroutine, func(h protocol.Handle) {
		done <- op(h)
	})

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		logger.Infof("Helper %s done", name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gave up on %s after %s: no helper could be reached", name, controlTimeout)
	}
}
