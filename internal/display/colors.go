// Package display renders human-facing terminal output: the job
// listing, the per-run summary table and the check diagnostics. Log
// lines go through the logging package; display is only for output a
// person reads at the end of an invocation.
package display

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
)

// ColorTheme defines the color scheme for different message types
type ColorTheme struct {
	Primary Color
	Success Color
	Warning Color
	Error   Color
	Info    Color
	Muted   Color
}

// DarkColorTheme returns a color theme for dark terminals
func DarkColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBrightBlue,
		Success: ColorBrightGreen,
		Warning: ColorBrightYellow,
		Error:   ColorBrightRed,
		Info:    ColorCyan,
		Muted:   ColorWhite,
	}
}

// LightColorTheme returns a color theme for light terminals
func LightColorTheme() ColorTheme {
	return ColorTheme{
		Primary: ColorBlue,
		Success: ColorGreen,
		Warning: ColorYellow,
		Error:   ColorRed,
		Info:    ColorCyan,
		Muted:   ColorMagenta,
	}
}

// PlainTheme returns a theme that applies no colors
func PlainTheme() ColorTheme {
	return ColorTheme{}
}

// ThemeByName returns a color theme by name, defaulting to dark.
func ThemeByName(name string) ColorTheme {
	switch name {
	case "light":
		return LightColorTheme()
	case "plain", "none":
		return PlainTheme()
	default:
		return DarkColorTheme()
	}
}

// ColorSystem applies theme colors to text, degrading to plain text
// when the terminal does not support color.
type ColorSystem interface {
	Colorize(text string, clr Color) string
	Sprintf(clr Color, format string, args ...interface{}) string
	IsColorSupported() bool
}

type colorSystem struct {
	supported bool
	colorMap  map[Color]*color.Color
}

// NewColorSystem creates a color system with terminal detection.
func NewColorSystem() ColorSystem {
	return newColorSystem(detectColorSupport())
}

// NewPlainColorSystem creates a color system that never colors,
// regardless of the terminal. Scripted output uses it.
func NewPlainColorSystem() ColorSystem {
	return newColorSystem(false)
}

func newColorSystem(supported bool) ColorSystem {
	cs := &colorSystem{
		supported: supported,
		colorMap: map[Color]*color.Color{
			ColorRed:          color.New(color.FgRed),
			ColorGreen:        color.New(color.FgGreen),
			ColorYellow:       color.New(color.FgYellow),
			ColorBlue:         color.New(color.FgBlue),
			ColorMagenta:      color.New(color.FgMagenta),
			ColorCyan:         color.New(color.FgCyan),
			ColorWhite:        color.New(color.FgWhite),
			ColorBrightRed:    color.New(color.FgHiRed),
			ColorBrightGreen:  color.New(color.FgHiGreen),
			ColorBrightYellow: color.New(color.FgHiYellow),
			ColorBrightBlue:   color.New(color.FgHiBlue),
		},
	}
	// Pin each color to our own detection instead of the package-global
	// TTY probe, which would strip colors under FORCE_COLOR.
	for _, c := range cs.colorMap {
		if supported {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return cs
}

// detectColorSupport checks whether stdout can take color output.
func detectColorSupport() bool {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// Colorize applies clr to text if color is supported.
func (cs *colorSystem) Colorize(text string, clr Color) string {
	if !cs.supported {
		return text
	}
	if c, exists := cs.colorMap[clr]; exists {
		return c.Sprint(text)
	}
	return text
}

// Sprintf formats text and applies clr to the result.
func (cs *colorSystem) Sprintf(clr Color, format string, args ...interface{}) string {
	return cs.Colorize(fmt.Sprintf(format, args...), clr)
}

// IsColorSupported returns whether colors are applied.
func (cs *colorSystem) IsColorSupported() bool {
	return cs.supported
}
