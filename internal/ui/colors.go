package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Default is the palette used by commands.
var Default = NewPalette("#1DB954", "#04B575", "#E22134", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	key   lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		key:   NewStyle(h),
	}
}

// Plain returns a palette that renders text unchanged.
func Plain() *Palette {
	s := lipgloss.NewStyle()
	return &Palette{title: s, ok: s, err: s, warn: s, help: s, key: s}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }

// Success prefixes s with a check mark.
func (p *Palette) Success(s string) string { return p.ok.Render("✓") + " " + s }

// Failure prefixes s with a cross.
func (p *Palette) Failure(s string) string { return p.err.Render("✗") + " " + s }

func (p *Palette) Warn(s string) string { return p.warn.Render(s) }

func (p *Palette) Help(s string) string { return p.help.Render(s) }

// Field renders an aligned "key: value" line.
func (p *Palette) Field(key string, value any) string {
	return fmt.Sprintf("  %s %v", p.key.Render(fmt.Sprintf("%-14s", key+":")), value)
}

// Fields renders pairs of key, value arguments as [Palette.Field] lines.
func (p *Palette) Fields(kv ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteString(p.Field(fmt.Sprint(kv[i]), kv[i+1]))
		b.WriteByte('\n')
	}
	return b.String()
}
