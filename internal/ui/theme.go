package ui

import (
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	// Widget colors
	Bg          tcell.Color
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	SelectionBg tcell.Color
	SelectionFg tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color

	// Table colors
	TableHeader   tcell.Color
	TableHeaderBg tcell.Color
	TableZebra1   tcell.Color
	TableZebra2   tcell.Color

	// Case status (widgets)
	StatusOpen      tcell.Color
	StatusAnalysis  tcell.Color
	StatusCompleted tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagTextPrimary string
	TagMuted       string
	TagAccent      string
	TagSuccess     string
	TagWarning     string
	TagError       string
}

// helpers
func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeDark() Theme {
	return Theme{
		Bg:          hex("#0e1116"),
		Surface:     hex("#12161e"),
		Border:      hex("#2b3240"),
		FocusBorder: hex("#4aa8ff"),
		SelectionBg: hex("#2b3240"),
		SelectionFg: hex("#cfd8e3"),
		TextPrimary: hex("#e6edf3"),
		TextMuted:   hex("#8a939f"),

		TableHeader:   hex("#eab308"),
		TableHeaderBg: hex("#1a2332"),
		TableZebra1:   hex("#161c27"),
		TableZebra2:   hex("#121823"),

		StatusOpen:      hex("#22c55e"),
		StatusAnalysis:  hex("#f59e0b"),
		StatusCompleted: hex("#8a939f"),

		TagTextPrimary: "#e6edf3",
		TagMuted:       "#8a939f",
		TagAccent:      "#2dd4bf",
		TagSuccess:     "#22c55e",
		TagWarning:     "#f59e0b",
		TagError:       "#ef4444",
	}
}

func themeLight() Theme {
	return Theme{
		Bg:          hex("#f8fafc"),
		Surface:     hex("#ffffff"),
		Border:      hex("#cbd5e1"),
		FocusBorder: hex("#1d4ed8"),
		SelectionBg: hex("#dbeafe"),
		SelectionFg: hex("#0f172a"),
		TextPrimary: hex("#0f172a"),
		TextMuted:   hex("#475569"),

		TableHeader:   hex("#1e3a8a"),
		TableHeaderBg: hex("#e2e8f0"),
		TableZebra1:   hex("#f1f5f9"),
		TableZebra2:   hex("#ffffff"),

		StatusOpen:      hex("#15803d"),
		StatusAnalysis:  hex("#b45309"),
		StatusCompleted: hex("#475569"),

		TagTextPrimary: "#0f172a",
		TagMuted:       "#475569",
		TagAccent:      "#1d4ed8",
		TagSuccess:     "#15803d",
		TagWarning:     "#b45309",
		TagError:       "#b91c1c",
	}
}

func themeHighContrast() Theme {
	return Theme{
		Bg:          tcell.ColorBlack,
		Surface:     tcell.ColorBlack,
		Border:      tcell.ColorWhite,
		FocusBorder: tcell.ColorYellow,
		SelectionBg: tcell.ColorWhite,
		SelectionFg: tcell.ColorBlack,
		TextPrimary: tcell.ColorWhite,
		TextMuted:   tcell.ColorSilver,

		TableHeader:   tcell.ColorYellow,
		TableHeaderBg: tcell.ColorBlack,
		TableZebra1:   tcell.ColorBlack,
		TableZebra2:   tcell.ColorBlack,

		StatusOpen:      tcell.ColorLime,
		StatusAnalysis:  tcell.ColorYellow,
		StatusCompleted: tcell.ColorSilver,

		TagTextPrimary: "white",
		TagMuted:       "silver",
		TagAccent:      "yellow",
		TagSuccess:     "lime",
		TagWarning:     "yellow",
		TagError:       "red",
	}
}

// themes in cycle order.
var themeNames = []string{"dark", "light", "high-contrast"}

func themeByName(name string) Theme {
	switch name {
	case "light":
		return themeLight()
	case "high-contrast":
		return themeHighContrast()
	default:
		return themeDark()
	}
}

func detectTrueColor() bool {
	ct := strings.ToLower(os.Getenv("COLORTERM"))
	return strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit")
}
