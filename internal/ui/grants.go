package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderGrants renders the granted key fingerprints as a table. The entry
// matching local, the fingerprint of this user's key, is marked.
func RenderGrants(fingerprints []string, local string) string {
	if len(fingerprints) == 0 {
		return SubtleStyle.Render("No SSH keys granted")
	}

	var rows [][]string
	for i, fp := range fingerprints {
		marker := ""
		if fp == local {
			marker = "◀ this user"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), fp, marker})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 1)
			case col == 0:
				return lipgloss.NewStyle().Foreground(ColorInfo).Bold(true).Padding(0, 1)
			case col == 2:
				return lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true).Padding(0, 1)
			default:
				return lipgloss.NewStyle().Foreground(ColorText).Padding(0, 1)
			}
		}).
		Headers("#", "FINGERPRINT", "").
		Rows(rows...)

	var output strings.Builder
	output.WriteString(t.String())
	output.WriteString("\n")
	output.WriteString(SubtleStyle.Render(fmt.Sprintf("%d key(s) granted", len(fingerprints))))
	return output.String()
}
