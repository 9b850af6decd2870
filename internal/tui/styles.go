package tui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the TUI.
var (
	ColorRed     = lipgloss.Color("#FF5F5F")
	ColorGreen   = lipgloss.Color("#5FD75F")
	ColorYellow  = lipgloss.Color("#FFD75F")
	ColorBlue    = lipgloss.Color("#5FAFFF")
	ColorPurple  = lipgloss.Color("#AF87FF")
	ColorPeach   = lipgloss.Color("#FFAF87")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
)

// paletteColors maps vocabulary colour keys to terminal colours.
var paletteColors = map[string]lipgloss.Color{
	"yellow": ColorYellow,
	"blue":   ColorBlue,
	"green":  ColorGreen,
	"purple": ColorPurple,
	"peach":  ColorPeach,
}

// Base styles reused by the views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	TabStyle = lipgloss.NewStyle().
			Foreground(ColorGray).
			Padding(0, 1)

	ActiveTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan).
			Underline(true).
			Padding(0, 1)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	EmotionStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
)

// stateStyle colours the controller state badge.
func stateStyle(state string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch state {
	case "capturing":
		return base.Foreground(ColorGreen)
	case "error":
		return base.Foreground(ColorRed)
	case "idle":
		return base.Foreground(ColorGray)
	default:
		return base.Foreground(ColorYellow)
	}
}

// emotionStyle colours an emotion by its vocabulary palette key.
func emotionStyle(color string) lipgloss.Style {
	c, ok := paletteColors[color]
	if !ok {
		c = ColorCyan
	}
	return EmotionStyle.Foreground(c)
}
