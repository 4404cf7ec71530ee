package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/daemon"
	"github.com/bnema/touchbridge/internal/display"
	"github.com/bnema/touchbridge/internal/helper"
	"github.com/bnema/touchbridge/internal/ipc"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/network"
	"github.com/bnema/touchbridge/internal/protocol"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	helperSocket string
	helperDetach bool
	helperSSH    bool
)

var helperCmd = &cobra.Command{
	Use:   "helper",
	Short: "Run the privileged injection helper",
	Long: `Run the privileged helper that owns the virtual touch devices.

The helper listens on a unix socket and, when enabled, on an SSH endpoint that
only accepts keys granted with 'touchbridge grant'. It is normally started on
demand by the broker through the elevation command, but can also run as a
system service.`,
	RunE: runHelper,
}

var helperStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a detached helper",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := config.Get().Helper.PidFile
		if err := daemon.Stop(pidFile); err != nil {
			return err
		}
		logger.Info("Helper stopped")
		return nil
	},
}

func init() {
	helperCmd.Flags().StringVarP(&helperSocket, "socket", "s", "", "Socket path")
	helperCmd.Flags().BoolVarP(&helperDetach, "detach", "d", false, "Detach into the background")
	helperCmd.Flags().BoolVar(&helperSSH, "ssh", false, "Also serve the SSH endpoint")

	// Bind flags to viper
	viper.BindPFlag("helper.socket_path", helperCmd.Flags().Lookup("socket"))
	viper.BindPFlag("helper.ssh_enabled", helperCmd.Flags().Lookup("ssh"))

	helperCmd.AddCommand(helperStopCmd)
	rootCmd.AddCommand(helperCmd)
}

func runHelper(cmd *cobra.Command, args []string) error {
	if !helper.IsElevated() {
		return fmt.Errorf("the helper requires root privileges for uinput access\nPlease run with: sudo touchbridge helper")
	}

	cfg := config.Get()
	if helperSocket != "" {
		cfg.Helper.SocketPath = helperSocket
	}
	if helperSSH {
		cfg.Helper.SSHEnabled = true
	}

	if err := helper.CheckUinputAccess(cfg.Helper.UinputPath); err != nil {
		return fmt.Errorf("uinput unavailable: %w", err)
	}

	if helperDetach {
		child, err := daemon.Detach(daemon.Options{
			PidFile: cfg.Helper.PidFile,
			LogFile: cfg.Logging.File,
		})
		if err != nil {
			return err
		}
		if child != nil {
			logger.Infof("Helper detached (pid %d)", child.Pid)
			return nil
		}
		defer func() {
			if err := daemon.Release(); err != nil {
				logger.Warnf("Failed to release pid file: %v", err)
			}
		}()
	}

	logger.SetPrefix("helper")
	return serveHelper(cmd.Context(), cfg)
}

// serveHelper exposes the uinput service until ctx is done or a signal arrives
func serveHelper(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg.Helper.DisplayWidth, cfg.Helper.DisplayHeight = displaySize(ctx, cfg)

	service, err := helper.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create helper: %w", err)
	}
	defer service.Close()

	service.OnReload(func(protocol.SharedConfig) {
		logger.SetLevel(config.Get().Logging.LogLevel)
	})

	socket := ipc.NewSocketServer(cfg.Helper.SocketPath, service,
		ipc.WithMode(os.FileMode(cfg.Helper.SocketMode)),
		ipc.WithOwner(helper.EffectiveUID()),
	)
	if err := socket.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer socket.Stop()

	if cfg.Helper.SSHEnabled {
		sshSrv := network.NewSSHServer(cfg.Helper.SSHAddress, cfg.Helper.SSHHostKeyPath, service)
		sshSrv.OnSessionStarted = func(id, fingerprint string) {
			logger.Info("Alternate broker session started", "session", id, "key", fingerprint)
		}
		sshSrv.OnSessionEnded = func(id string) {
			logger.Info("Alternate broker session ended", "session", id)
		}
		if err := sshSrv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start SSH endpoint: %w", err)
		}
		defer sshSrv.Stop()
		logger.Infof("SSH endpoint listening on %s", sshSrv.Addr())
	}

	logger.Infof("Helper ready on %s", socket.Path())

	<-ctx.Done()
	logger.Info("Shutting down helper")
	return nil
}

// displaySize returns the configured display size, or the detected one when
// detect_display is set
func displaySize(ctx context.Context, cfg *config.Config) (int, int) {
	w, h := cfg.Helper.DisplayWidth, cfg.Helper.DisplayHeight
	if !cfg.Helper.DetectDisplay {
		return w, h
	}
	lister, err := display.NewWlrRandr()
	if err != nil {
		logger.Warnf("Display detection unavailable: %v", err)
		return w, h
	}
	return display.Resolve(ctx, lister, w, h)
}
