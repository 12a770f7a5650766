// Package theme maps a palette onto the editor's visual roles: plain
// text, the highlight for currently-sounding code, the evaluation
// flash and the status line.
package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color roles mapped to palette positions (0-1)
const (
	RoleBG        = 0.0
	RoleMuted     = 0.2
	RoleFG        = 0.45
	RoleAccent    = 0.6
	RoleHighlight = 0.75
	RoleWarning   = 0.85
	RoleFlash     = 1.0
)

type Theme struct {
	Palette *Palette

	text      lipgloss.Style
	highlight lipgloss.Style
	flash     lipgloss.Style
	errline   lipgloss.Style
	status    lipgloss.Style
	gutter    lipgloss.Style
}

// New builds a theme from a built-in palette name ("plasma", "mono", ...).
func New(name string) *Theme {
	return FromPalette(ByName(name))
}

// FromPalette builds a theme over any palette, built-in or loaded
// from a GPL file.
func FromPalette(p *Palette) *Theme {
	t := &Theme{Palette: p}

	fg := p.Lookup(RoleFG)
	hl := p.Lookup(RoleHighlight)
	t.text = lipgloss.NewStyle().Foreground(toLipgloss(fg))
	t.highlight = lipgloss.NewStyle().
		Foreground(toLipgloss(p.Lookup(RoleBG))).
		Background(toLipgloss(hl))
	// The flash is a brighter cousin of the highlight so an
	// evaluation reads as one event, not two colors.
	t.flash = lipgloss.NewStyle().
		Foreground(toLipgloss(p.Lookup(RoleBG))).
		Background(toLipgloss(lighten(hl, 0.25)))
	t.errline = lipgloss.NewStyle().Foreground(toLipgloss(p.Lookup(RoleWarning)))
	t.status = lipgloss.NewStyle().
		Foreground(toLipgloss(fg)).
		Background(toLipgloss(darken(p.Lookup(RoleMuted), 0.15)))
	t.gutter = lipgloss.NewStyle().Foreground(toLipgloss(p.Lookup(RoleMuted)))

	return t
}

func (t *Theme) Text() lipgloss.Style      { return t.text }
func (t *Theme) Highlight() lipgloss.Style { return t.highlight }
func (t *Theme) Flash() lipgloss.Style     { return t.flash }
func (t *Theme) ErrLine() lipgloss.Style   { return t.errline }
func (t *Theme) Status() lipgloss.Style    { return t.status }
func (t *Theme) Gutter() lipgloss.Style    { return t.gutter }

// Color returns the lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return toLipgloss(t.Palette.Lookup(norm))
}

func toLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

func lighten(c RGB, amount float64) RGB {
	return adjust(c, amount)
}

func darken(c RGB, amount float64) RGB {
	return adjust(c, -amount)
}

func adjust(c RGB, amount float64) RGB {
	col := colorful.Color{
		R: float64(c[0]) / 255,
		G: float64(c[1]) / 255,
		B: float64(c[2]) / 255,
	}
	h, s, l := col.Hsl()
	l += amount
	if l < 0 {
		l = 0
	}
	if l > 1 {
		l = 1
	}
	out := colorful.Hsl(h, s, l).Clamped()
	return RGB{uint8(out.R * 255), uint8(out.G * 255), uint8(out.B * 255)}
}
