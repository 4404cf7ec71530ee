// Package ui provides consistent styling and components for the touchbridge CLI
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	ColorLive   = ColorSuccess
	ColorDead   = ColorError
	ColorPaused = ColorWarning
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	SubheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(1, 2)

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Handle indicators
var (
	LiveIndicator = lipgloss.NewStyle().
			Foreground(ColorLive).
			Render("●")

	DeadIndicator = lipgloss.NewStyle().
			Foreground(ColorDead).
			Render("○")
)

// Icons
var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconSetup   = "»"
	IconSummary = "="
	IconSteps   = "→"
	IconPhase   = "·"
)

// FormatStatus prefixes status with the live or dead indicator
func FormatStatus(live bool, status string) string {
	indicator := DeadIndicator
	if live {
		indicator = LiveIndicator
	}
	return indicator + " " + status
}

// FormatControl renders a key binding hint
func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " " + SubtleStyle.Render(desc)
}

// FormatSetupHeader renders a section title followed by a separator
func FormatSetupHeader(title string) string {
	header := HeaderStyle.UnsetMarginBottom().Render(InfoStyle.Render(IconSetup) + " " + title)
	return header + "\n" + CreateSeparator(50, "─")
}

// FormatSetupPhase renders a phase line inside a setup section
func FormatSetupPhase(phase string) string {
	return InfoStyle.Bold(true).Render(IconPhase + " " + phase)
}

// FormatSetupResult renders the outcome of one setup step
func FormatSetupResult(success bool, step, message string) string {
	icon := ErrorStyle.Render(IconError)
	style := ErrorStyle
	if success {
		icon = SuccessStyle.Render(IconSuccess)
		style = SuccessStyle
	}

	result := "   " + icon + " " + step
	if message != "" {
		result += " - " + style.Render(message)
	}
	return result
}

// FormatSummaryHeader renders the closing summary title
func FormatSummaryHeader(title string) string {
	header := HeaderStyle.UnsetMarginBottom().Render(InfoStyle.Render(IconSummary) + " " + title)
	return header + "\n" + CreateSeparator(50, "─")
}

// FormatActionItem renders a numbered follow-up action
func FormatActionItem(index int, action string) string {
	return TextStyle.MarginLeft(1).Render(fmt.Sprintf("   %d. %s", index, action))
}

// FormatNextStepsHeader renders the "Next Steps" heading
func FormatNextStepsHeader() string {
	return InfoStyle.Bold(true).Render(IconSteps + " Next Steps:")
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return SubtleStyle.Render(strings.Repeat(char, width))
}
