package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Escalation choices offered by SelectEscalation
const (
	EscalationSpawn     = "spawn"
	EscalationAlternate = "alternate"
)

// SelectEscalation asks how the broker should reach root when no helper runs.
// It returns true when the SSH alternate broker is preferred.
func SelectEscalation(useAlternate bool) (bool, error) {
	selected := EscalationSpawn
	if useAlternate {
		selected = EscalationAlternate
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Escalation Path").
				Description("How touchbridge reaches a privileged helper when none is running").
				Options(
					huh.NewOption("Spawn a root helper (sudo / pkexec)", EscalationSpawn),
					huh.NewOption("Bind over SSH with a granted key", EscalationAlternate),
				).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return useAlternate, fmt.Errorf("escalation selection cancelled: %w", err)
	}
	return selected == EscalationAlternate, nil
}

// Confirm asks a yes/no question
func Confirm(title, description string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// PromptPassphrase reads an SSH key passphrase without echo
func PromptPassphrase(keyPath string) (string, error) {
	var passphrase string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Key Passphrase").
				Description(keyPath).
				EchoMode(huh.EchoModePassword).
				Value(&passphrase),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("passphrase prompt cancelled: %w", err)
	}
	return passphrase, nil
}
