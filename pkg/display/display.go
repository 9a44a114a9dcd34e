// Package display renders the banner boxes and color accents used by
// the CLI and the deployment engine.
package display

import (
	"github.com/charmbracelet/lipgloss"
)

// Color identifies one of the named banner colors.
type Color = lipgloss.Color

// Banner palette. Bright ANSI colors so boxes stand out against
// regular log output; never use inline lipgloss.Color literals.
var (
	// Yellow frames run level banners (deploy, test, teardown).
	Yellow = lipgloss.Color("11")

	// Blue frames per resource banners during build and test.
	Blue = lipgloss.Color("12")

	// Green frames success notices.
	Green = lipgloss.Color("10")

	// Red frames destructive stages (teardown resources, server stop).
	Red = lipgloss.Color("9")

	// Cyan frames informational notices.
	Cyan = lipgloss.Color("14")
)

// RenderBox wraps text in a single line unicode box with a colored
// border, one space of horizontal padding inside.
func RenderBox(text string, color Color) string {
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(text)
}

// Colorize renders text in one of the banner colors, for status lines
// outside boxes.
func Colorize(text string, color Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
