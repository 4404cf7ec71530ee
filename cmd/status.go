package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/touchbridge/internal/broker"
	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/bnema/touchbridge/internal/ui"
	"github.com/spf13/cobra"
)

var statusAcquire bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the helper state",
	Long: `Show whether a helper is reachable and what it reports.

By default only a running helper is probed. With --acquire the broker walks
every escalation path, which may start a helper.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAcquire, "acquire", "a", false, "Start or bind a helper if none is running")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var status ui.Status
	if statusAcquire {
		status = collectStatus(ctx, broker.Default(), acquireTimeout)
	} else {
		h, err := broker.ProbeSocket(ctx, cfg.Broker.SocketPath, time.Duration(cfg.Broker.ProbeTimeoutMs)*time.Millisecond)
		if err == nil {
			defer h.Close()
			status = handleStatus(h, broker.TierCachedHandle)
		} else {
			status = ui.Status{Tier: broker.TierNone.String(), Err: err}
		}
		status.Elevation = broker.ElevationUnknown.String()
	}
	status.SocketPath = cfg.Broker.SocketPath
	status.ConfigPath = config.GetConfigPath()

	fmt.Println(ui.RenderStatus(status))
	return nil
}

// collectStatus acquires a handle through b and reads its shared configuration
func collectStatus(ctx context.Context, b *broker.Broker, timeout time.Duration) ui.Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := b.AcquireWait(ctx)
	if err != nil {
		return ui.Status{
			Tier:      b.Tier().String(),
			Elevation: b.Elevation().String(),
			Err:       err,
		}
	}

	status := handleStatus(h, b.Tier())
	status.Elevation = b.Elevation().String()
	return status
}

func handleStatus(h protocol.Injector, tier broker.Tier) ui.Status {
	status := ui.Status{Tier: tier.String()}

	shared, err := h.SharedConfig()
	if err != nil {
		status.Err = err
		return status
	}
	status.Live = true
	status.Paused = shared.Paused
	status.SwipeDelay = shared.SwipeDelayMs
	return status
}
