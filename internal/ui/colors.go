package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/bundlex/internal/host"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
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

// status renders an event kind in the color of its outcome.
func (p *Palette) status(k host.EventKind) string {
	switch k {
	case host.EventSucceeded:
		return p.ok.Render(k.String())
	case host.EventFailed:
		return p.err.Render(k.String())
	case host.EventStarted, host.EventQueued, host.EventCoalesced:
		return p.warn.Render(k.String())
	default:
		return p.help.Render(k.String())
	}
}
