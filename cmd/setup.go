package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/helper"
	"github.com/bnema/touchbridge/internal/input"
	"github.com/bnema/touchbridge/internal/network"
	"github.com/bnema/touchbridge/internal/ui"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Check the system and choose how to reach root",
	Long: `Check uinput and input device access, then choose the escalation path the
broker takes when no helper is running: spawning a root helper through the
elevation command, or binding over SSH with a granted key.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupCheck is one line of the setup report
type setupCheck struct {
	step    string
	ok      bool
	message string
	action  string // follow-up shown when the check failed
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println(ui.FormatSetupHeader("touchbridge Setup"))
	fmt.Println()

	fmt.Println(ui.FormatSetupPhase("System"))
	checks := systemChecks(cfg)
	for _, c := range checks {
		fmt.Println(ui.FormatSetupResult(c.ok, c.step, c.message))
	}
	fmt.Println()

	fmt.Println(ui.FormatSetupPhase("Escalation"))
	useAlternate, err := ui.SelectEscalation(cfg.Broker.UseAlternate)
	if err != nil {
		return err
	}
	if err := config.SetUseAlternate(useAlternate); err != nil {
		return fmt.Errorf("failed to save escalation preference: %w", err)
	}

	var escalation []setupCheck
	if useAlternate {
		escalation = alternateChecks(cfg)
	} else {
		escalation = []setupCheck{elevateCheck(cfg.Broker.ElevateCommand)}
	}
	for _, c := range escalation {
		fmt.Println(ui.FormatSetupResult(c.ok, c.step, c.message))
	}
	checks = append(checks, escalation...)
	fmt.Println()

	pickDevice := cfg.Aim.Device == ""
	if !pickDevice {
		keep, err := ui.Confirm("Aim Device", "Keep "+cfg.Aim.Device+" as the aim input device?")
		pickDevice = err == nil && !keep
	}

	if pickDevice {
		fmt.Println(ui.FormatSetupPhase("Aim device"))
		if path, err := input.SelectPointerDevice(); err == nil {
			if err := config.SetAimDevice(path); err != nil {
				return fmt.Errorf("failed to save aim device: %w", err)
			}
			fmt.Println(ui.FormatSetupResult(true, "Aim device", path))
		} else {
			fmt.Println(ui.FormatSetupResult(false, "Aim device", err.Error()))
		}
		fmt.Println()
	}

	fmt.Println(ui.FormatSummaryHeader("Summary"))
	fmt.Println(ui.SubtleStyle.Render("Config saved to " + config.GetConfigPath()))

	var actions []string
	for _, c := range checks {
		if !c.ok && c.action != "" {
			actions = append(actions, c.action)
		}
	}
	if len(actions) > 0 {
		fmt.Println()
		fmt.Println(ui.FormatNextStepsHeader())
		for i, a := range actions {
			fmt.Println(ui.FormatActionItem(i+1, a))
		}
	}
	return nil
}

func systemChecks(cfg *config.Config) []setupCheck {
	var checks []setupCheck

	if _, err := os.Stat(cfg.Helper.UinputPath); err != nil {
		checks = append(checks, setupCheck{
			step:    "uinput",
			message: fmt.Sprintf("%s not found", cfg.Helper.UinputPath),
			action:  "Load the uinput module: sudo modprobe uinput",
		})
	} else if err := helper.CheckUinputAccess(cfg.Helper.UinputPath); err != nil {
		// Expected for a normal user, the helper runs as root
		checks = append(checks, setupCheck{step: "uinput", ok: true, message: "present, the helper needs root"})
	} else {
		checks = append(checks, setupCheck{step: "uinput", ok: true, message: "writable"})
	}

	devices, err := input.ListPointerDevices()
	switch {
	case err != nil:
		checks = append(checks, setupCheck{step: "Input devices", message: err.Error()})
	case len(devices) == 0:
		checks = append(checks, setupCheck{
			step:    "Input devices",
			message: "no readable pointer device",
			action:  "Add your user to the input group: sudo usermod -aG input $USER",
		})
	default:
		checks = append(checks, setupCheck{step: "Input devices", ok: true, message: fmt.Sprintf("%d pointer device(s)", len(devices))})
	}

	return checks
}

// elevateCheck verifies that the elevation command can be found
func elevateCheck(elevate string) setupCheck {
	fields := strings.Fields(elevate)
	if len(fields) == 0 {
		return setupCheck{
			step:    "Elevation command",
			message: "empty",
			action:  "Set broker.elevate_command, e.g. \"sudo -n\"",
		}
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return setupCheck{
			step:    "Elevation command",
			message: fields[0] + " not found",
			action:  "Install " + fields[0] + " or change broker.elevate_command",
		}
	}

	return setupCheck{step: "Elevation command", ok: true, message: elevate}
}

func alternateChecks(cfg *config.Config) []setupCheck {
	keyPath := cfg.Broker.SSHPrivateKey
	if keyPath == "" {
		keyPath = network.DefaultPrivateKeyPath()
	}
	if keyPath == "" {
		return []setupCheck{{
			step:    "SSH key",
			message: "no private key found",
			action:  "Create one with ssh-keygen -t ed25519",
		}}
	}

	checks := []setupCheck{}
	fingerprint, err := network.FingerprintFile(keyPath + ".pub")
	if err != nil {
		return append(checks, setupCheck{step: "SSH key", message: err.Error()})
	}
	checks = append(checks, setupCheck{step: "SSH key", ok: true, message: fingerprint})

	if network.IsGranted(fingerprint) {
		checks = append(checks, setupCheck{step: "Grant", ok: true, message: "granted"})
	} else {
		checks = append(checks, setupCheck{
			step:    "Grant",
			message: "not granted",
			action:  fmt.Sprintf("Grant the key as root: sudo touchbridge grant %s.pub", keyPath),
		})
	}

	if _, err := network.LoadSigner(keyPath); err != nil {
		checks = append(checks, setupCheck{
			step:    "Key passphrase",
			message: "key cannot be opened",
			action:  "Store its passphrase: touchbridge passphrase " + keyPath,
		})
	}

	if !cfg.Helper.SSHEnabled {
		checks = append(checks, setupCheck{
			step:    "Helper SSH endpoint",
			message: "disabled",
			action:  "Run the helper with --ssh or set helper.ssh_enabled = true",
		})
	}
	return checks
}
