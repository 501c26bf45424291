package render

import (
	"github.com/charmbracelet/lipgloss"

	"auditline/internal/domain"
)

// Badge is the foreground/background pair of a labelled chip.
type Badge struct {
	Foreground lipgloss.Color
	Background lipgloss.Color
}

// Palette holds the colors for one theme. All colors are ANSI 256 codes.
type Palette struct {
	Name string

	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	Header     lipgloss.Color
	Accent     lipgloss.Color

	SeverityHigh   Badge
	SeverityMedium Badge
	SeverityLow    Badge

	StatusOpen       Badge
	StatusInProgress Badge
	StatusClosed     Badge

	Neutral Badge
}

// Light mirrors the pale chips of the light theme: tinted background,
// dark text.
var Light = Palette{
	Name:       "light",
	NormalText: lipgloss.Color("235"),
	FaintText:  lipgloss.Color("245"),
	Header:     lipgloss.Color("55"),
	Accent:     lipgloss.Color("62"),

	SeverityHigh:   Badge{Foreground: lipgloss.Color("88"), Background: lipgloss.Color("224")},
	SeverityMedium: Badge{Foreground: lipgloss.Color("94"), Background: lipgloss.Color("230")},
	SeverityLow:    Badge{Foreground: lipgloss.Color("22"), Background: lipgloss.Color("194")},

	StatusOpen:       Badge{Foreground: lipgloss.Color("88"), Background: lipgloss.Color("224")},
	StatusInProgress: Badge{Foreground: lipgloss.Color("94"), Background: lipgloss.Color("230")},
	StatusClosed:     Badge{Foreground: lipgloss.Color("22"), Background: lipgloss.Color("194")},

	Neutral: Badge{Foreground: lipgloss.Color("236"), Background: lipgloss.Color("254")},
}

// Dark uses saturated chips with light text.
var Dark = Palette{
	Name:       "dark",
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),
	Header:     lipgloss.Color("189"),
	Accent:     lipgloss.Color("105"),

	SeverityHigh:   Badge{Foreground: lipgloss.Color("224"), Background: lipgloss.Color("124")},
	SeverityMedium: Badge{Foreground: lipgloss.Color("230"), Background: lipgloss.Color("136")},
	SeverityLow:    Badge{Foreground: lipgloss.Color("194"), Background: lipgloss.Color("28")},

	StatusOpen:       Badge{Foreground: lipgloss.Color("224"), Background: lipgloss.Color("124")},
	StatusInProgress: Badge{Foreground: lipgloss.Color("230"), Background: lipgloss.Color("136")},
	StatusClosed:     Badge{Foreground: lipgloss.Color("194"), Background: lipgloss.Color("28")},

	Neutral: Badge{Foreground: lipgloss.Color("254"), Background: lipgloss.Color("238")},
}

func PaletteFor(dark bool) Palette {
	if dark {
		return Dark
	}
	return Light
}

// SeverityBadge returns the chip colors for a severity. Values outside the
// closed set get the neutral chip.
func (p Palette) SeverityBadge(s domain.Severity) Badge {
	switch s {
	case domain.SeverityHigh:
		return p.SeverityHigh
	case domain.SeverityMedium:
		return p.SeverityMedium
	case domain.SeverityLow:
		return p.SeverityLow
	default:
		return p.Neutral
	}
}

func (p Palette) StatusBadge(s domain.Status) Badge {
	switch s {
	case domain.StatusOpen:
		return p.StatusOpen
	case domain.StatusInProgress:
		return p.StatusInProgress
	case domain.StatusClosed:
		return p.StatusClosed
	default:
		return p.Neutral
	}
}
