package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage touchbridge configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Broker]")
		logger.Infof("  Socket: %s", cfg.Broker.SocketPath)
		logger.Infof("  Use Alternate: %v", cfg.Broker.UseAlternate)
		logger.Infof("  Elevate Command: %s", cfg.Broker.ElevateCommand)
		logger.Infof("  Spawn Timeout: %dms", cfg.Broker.SpawnTimeoutMs)
		logger.Infof("  SSH Address: %s", cfg.Broker.SSHAddress)
		logger.Infof("  SSH User: %s", cfg.Broker.SSHUser)
		if cfg.Broker.SSHPrivateKey != "" {
			logger.Infof("  SSH Private Key: %s", cfg.Broker.SSHPrivateKey)
		}
		if cfg.Broker.SSHHostFingerprint != "" {
			logger.Infof("  SSH Host Fingerprint: %s", cfg.Broker.SSHHostFingerprint)
		}

		logger.Info("\n[Helper]")
		logger.Infof("  Socket: %s (mode %o)", cfg.Helper.SocketPath, cfg.Helper.SocketMode)
		logger.Infof("  uinput: %s", cfg.Helper.UinputPath)
		logger.Infof("  Device Name: %s", cfg.Helper.DeviceName)
		logger.Infof("  Display: %dx%d", cfg.Helper.DisplayWidth, cfg.Helper.DisplayHeight)
		logger.Infof("  Pid File: %s", cfg.Helper.PidFile)
		logger.Infof("  SSH Enabled: %v", cfg.Helper.SSHEnabled)
		if cfg.Helper.SSHEnabled {
			logger.Infof("  SSH Address: %s", cfg.Helper.SSHAddress)
			logger.Infof("  SSH Host Key: %s", cfg.Helper.SSHHostKeyPath)
		}
		logger.Infof("  Granted Keys: %d", len(cfg.Helper.SSHGrantedKeys))

		logger.Info("\n[Shared]")
		logger.Infof("  Swipe Delay: %dms", cfg.Shared.SwipeDelayMs)

		logger.Info("\n[Aim]")
		logger.Infof("  Center: (%.0f, %.0f)", cfg.Aim.XCenter, cfg.Aim.YCenter)
		logger.Infof("  Sensitivity: x=%.2f y=%.2f", cfg.Aim.XSensitivity, cfg.Aim.YSensitivity)
		logger.Infof("  Non-linear: %v", cfg.Aim.NonLinear)
		logger.Infof("  Limited Bounds: %v", cfg.Aim.LimitedBounds)
		logger.Infof("  Area: %.0fx%.0f", cfg.Aim.Width, cfg.Aim.Height)
		logger.Infof("  Left Click: (%.0f, %.0f)", cfg.Aim.XLeftClick, cfg.Aim.YLeftClick)
		if cfg.Aim.Device != "" {
			logger.Infof("  Device: %s", cfg.Aim.Device)
		}
		logger.Infof("  Grab: %v", cfg.Aim.Grab)

		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("\nYou can now:")
		logger.Info("  - Run 'touchbridge setup' to choose the escalation path")
		logger.Info("  - Use 'touchbridge config show' to view current settings")

		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
