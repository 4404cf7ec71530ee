package cmd

import (
	"fmt"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/network"
	"github.com/bnema/touchbridge/internal/ui"
	"github.com/spf13/cobra"
)

var grantCmd = &cobra.Command{
	Use:   "grant <public-key-file>",
	Short: "Allow an SSH key to bind to the helper",
	Long: `Add the fingerprint of an SSH public key to the helper's grant list.

Keys without a grant are refused by the helper's SSH endpoint. This is the only
way to authorize the SSH escalation path: there is no interactive approval.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fingerprint, err := network.GrantKey(args[0])
		if err != nil {
			return err
		}
		logger.Infof("Granted %s", fingerprint)
		logger.Infof("Saved to %s", config.GetConfigPath())
		logger.Info("Run 'touchbridge reload' or restart the helper to apply")
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <fingerprint>",
	Short: "Remove an SSH key grant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := network.RevokeKey(args[0]); err != nil {
			return err
		}
		logger.Infof("Revoked %s", args[0])
		return nil
	},
}

var grantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "List granted SSH keys",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Get()

		keyPath := cfg.Broker.SSHPrivateKey
		if keyPath == "" {
			keyPath = network.DefaultPrivateKeyPath()
		}
		local := ""
		if keyPath != "" {
			// The public half sits next to the private key
			if fp, err := network.FingerprintFile(keyPath + ".pub"); err == nil {
				local = fp
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderGrants(cfg.Helper.SSHGrantedKeys, local))
	},
}

var passphraseForget bool

var passphraseCmd = &cobra.Command{
	Use:   "passphrase [private-key-file]",
	Short: "Store the passphrase of an encrypted SSH key in the keyring",
	Long: `Store the passphrase of the SSH key used for the SSH escalation path in the
system keyring, so that the broker can bind without prompting.

The key defaults to broker.ssh_private_key, then ~/.ssh/id_ed25519 or ~/.ssh/id_rsa.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath := config.Get().Broker.SSHPrivateKey
		if len(args) == 1 {
			keyPath = args[0]
		}
		if keyPath == "" {
			keyPath = network.DefaultPrivateKeyPath()
		}
		if keyPath == "" {
			return fmt.Errorf("no SSH private key found")
		}

		if passphraseForget {
			if err := network.ForgetPassphrase(keyPath); err != nil {
				return err
			}
			logger.Infof("Forgot passphrase of %s", keyPath)
			return nil
		}

		passphrase, err := ui.PromptPassphrase(keyPath)
		if err != nil {
			return err
		}
		if err := network.StorePassphrase(keyPath, passphrase); err != nil {
			return err
		}

		// Make sure the stored passphrase actually opens the key
		if _, err := network.LoadSigner(keyPath); err != nil {
			return fmt.Errorf("passphrase stored but the key still cannot be opened: %w", err)
		}
		logger.Infof("Stored passphrase of %s", keyPath)
		return nil
	},
}

func init() {
	passphraseCmd.Flags().BoolVar(&passphraseForget, "forget", false, "Remove the stored passphrase")

	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(passphraseCmd)
}
