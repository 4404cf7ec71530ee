package ui

import (
	"fmt"
	"strings"
)

// Status is a snapshot of the broker and the helper it reached
type Status struct {
	Tier       string
	Elevation  string
	Live       bool
	Paused     bool
	SwipeDelay int // milliseconds
	SocketPath string
	ConfigPath string
	Err        error
}

// RenderStatus renders a status snapshot inside a box
func RenderStatus(s Status) string {
	var output strings.Builder

	output.WriteString(TitleStyle.Render("touchbridge"))
	output.WriteString("\n\n")

	if s.Live {
		state := "Helper reachable"
		if s.Paused {
			state += " " + WarningStyle.Render("(paused)")
		}
		output.WriteString(FormatStatus(true, state))
	} else {
		output.WriteString(FormatStatus(false, "No helper"))
	}
	output.WriteString("\n\n")

	output.WriteString(SubheaderStyle.Render("Broker"))
	output.WriteString("\n")
	output.WriteString(row("Tier", s.Tier))
	output.WriteString(row("Elevation", s.Elevation))
	output.WriteString(row("Socket", s.SocketPath))

	if s.Live {
		output.WriteString("\n")
		output.WriteString(SubheaderStyle.Render("Shared config"))
		output.WriteString("\n")
		output.WriteString(row("Swipe delay", fmt.Sprintf("%dms", s.SwipeDelay)))
	}

	if s.ConfigPath != "" {
		output.WriteString("\n")
		output.WriteString(SubtleStyle.Render("Config: " + s.ConfigPath))
	}

	if s.Err != nil {
		output.WriteString("\n")
		output.WriteString(ErrorStyle.Render("Error: " + s.Err.Error()))
	}

	return BoxStyle.Render(output.String())
}

func row(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("  %-12s %s\n", SubtleStyle.Render(label+":"), TextStyle.Render(value))
}
