// Package styles holds the colors and renderers the dang CLI draws with.
package styles

import (
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
func uintPtr(u uint) *uint       { return &u }

var (
	Title   = lipgloss.NewStyle().Foreground(charmtone.Zest).Background(charmtone.Charple).Bold(true).Padding(0, 1)
	Header  = lipgloss.NewStyle().Foreground(charmtone.Malibu).Bold(true)
	Address = lipgloss.NewStyle().Foreground(charmtone.Zinc)
	Symbol  = lipgloss.NewStyle().Foreground(charmtone.Zest)
	Changed = lipgloss.NewStyle().Foreground(charmtone.Cheeky).Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(charmtone.Squid)
	Current = lipgloss.NewStyle().Foreground(charmtone.Guac).Bold(true)
	Menu    = lipgloss.NewStyle().Background(charmtone.Charcoal).Foreground(charmtone.Smoke).Padding(0, 1)
	Border  = lipgloss.NewStyle().Foreground(charmtone.Charcoal)
)

// MarkdownRenderer returns a glamour renderer wrapping prose at width.
// With color off it falls back to the plain notty style.
func MarkdownRenderer(width int, color bool) (*glamour.TermRenderer, error) {
	style := glamour.WithStyles(MarkdownStyle())
	if !color {
		style = glamour.WithStandardStyle("notty")
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
}

// MarkdownStyle is the dang markdown theme.
func MarkdownStyle() ansi.StyleConfig {
	heading := func(prefix string) ansi.StyleBlock {
		return ansi.StyleBlock{StylePrimitive: ansi.StylePrimitive{
			Prefix: prefix,
			Color:  stringPtr(charmtone.Malibu.Hex()),
			Bold:   boolPtr(true),
		}}
	}
	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Smoke.Hex()),
			},
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  stringPtr(charmtone.Guac.Hex()),
				Italic: boolPtr(true),
			},
			Indent:      uintPtr(1),
			IndentToken: stringPtr("│ "),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockSuffix: "\n",
				Color:       stringPtr(charmtone.Malibu.Hex()),
				Bold:        boolPtr(true),
			},
		},
		H1: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Prefix:          " ",
				Suffix:          " ",
				Color:           stringPtr(charmtone.Zest.Hex()),
				BackgroundColor: stringPtr(charmtone.Charple.Hex()),
				Bold:            boolPtr(true),
			},
		},
		H2: heading("## "),
		H3: heading("### "),
		H4: heading("#### "),
		Emph: ansi.StylePrimitive{
			Italic: boolPtr(true),
		},
		Strong: ansi.StylePrimitive{
			Bold: boolPtr(true),
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  stringPtr(charmtone.Charcoal.Hex()),
			Format: "\n--------\n",
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Enumeration: ansi.StylePrimitive{
			BlockPrefix: ". ",
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: stringPtr(charmtone.Zest.Hex()),
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Smoke.Hex()),
				},
				Margin: uintPtr(1),
			},
		},
		Table: ansi.StyleTable{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: stringPtr(charmtone.Smoke.Hex()),
				},
			},
		},
		Text: ansi.StylePrimitive{},
	}
}
