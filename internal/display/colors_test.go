package display

import (
	"strings"
	"testing"
)

func TestColorizeAppliesAnsiCodes(t *testing.T) {
	cs := newColorSystem(true)

	out := cs.Colorize("failed", ColorRed)
	if !strings.Contains(out, "failed") {
		t.Errorf("Colorize() lost the text: %q", out)
	}
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("Colorize() produced no escape codes: %q", out)
	}
}

func TestColorizePlainWhenUnsupported(t *testing.T) {
	cs := newColorSystem(false)

	if out := cs.Colorize("failed", ColorRed); out != "failed" {
		t.Errorf("Colorize() = %q, want plain text", out)
	}
	if cs.IsColorSupported() {
		t.Error("IsColorSupported() = true, want false")
	}
}

func TestColorizeUnknownColorPassesThrough(t *testing.T) {
	cs := newColorSystem(true)

	if out := cs.Colorize("text", ColorReset); out != "text" {
		t.Errorf("Colorize(ColorReset) = %q, want plain text", out)
	}
}

func TestSprintf(t *testing.T) {
	cs := newColorSystem(false)

	if out := cs.Sprintf(ColorGreen, "%d jobs completed", 3); out != "3 jobs completed" {
		t.Errorf("Sprintf() = %q", out)
	}
}

func TestThemeByName(t *testing.T) {
	if theme := ThemeByName("light"); theme.Primary != ColorBlue {
		t.Errorf("light theme primary = %v", theme.Primary)
	}
	if theme := ThemeByName("plain"); theme.Error != ColorReset {
		t.Errorf("plain theme error = %v", theme.Error)
	}
	if theme := ThemeByName("anything-else"); theme.Primary != ColorBrightBlue {
		t.Errorf("default theme primary = %v", theme.Primary)
	}
}

func TestNewPlainColorSystem(t *testing.T) {
	cs := NewPlainColorSystem()
	if cs.IsColorSupported() {
		t.Error("plain color system reports color support")
	}
}
