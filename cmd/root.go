package cmd

import (
	"fmt"
	"io"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logCloser  io.Closer

	rootCmd = &cobra.Command{
		Use:   "touchbridge",
		Short: "touchbridge - mouse aim to touch injection",
		Long: `touchbridge turns relative mouse motion into simulated touch contacts.

Injection needs root. touchbridge runs a small privileged helper that owns the
virtual touch devices and talks to it over a unix socket, or over SSH with a
key granted beforehand. The helper is found, started or bound on demand.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				_ = logCloser.Close()
				logCloser = nil
			}
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default searches /etc/touchbridge and ~/.config/touchbridge)")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := config.Get()
	logger.SetLevel(cfg.Logging.LogLevel)

	if cfg.Logging.File != "" && logCloser == nil {
		closer, err := logger.EnableFileLogging(cfg.Logging.File)
		if err != nil {
			logger.Warnf("File logging disabled: %v", err)
			return nil
		}
		logCloser = closer
	}
	return nil
}
