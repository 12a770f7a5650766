package theme

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Palette is a color ramp sampled by normalized position.
type Palette struct {
	Name   string
	Colors []RGB
}

// Built-in palettes, selectable through the "theme" setting.
var builtins = map[string]*Palette{
	"plasma": {
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135}, {84, 2, 163}, {139, 10, 165}, {185, 50, 137},
			{219, 92, 104}, {244, 136, 73}, {254, 188, 43}, {240, 249, 33},
		},
	},
	"mono": {
		Name: "mono",
		Colors: []RGB{
			{20, 20, 20}, {90, 90, 90}, {160, 160, 160}, {235, 235, 235},
		},
	},
}

// ByName returns a built-in palette, falling back to plasma.
func ByName(name string) *Palette {
	if p, ok := builtins[name]; ok {
		return p
	}
	return builtins["plasma"]
}

// LoadGPL reads a GIMP palette file, for users who bring their own
// colors.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &Palette{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if after, ok := strings.CutPrefix(line, "Name:"); ok {
			p.Name = strings.TrimSpace(after)
			continue
		}
		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 3 {
			r, err1 := strconv.Atoi(fields[0])
			g, err2 := strconv.Atoi(fields[1])
			b, err3 := strconv.Atoi(fields[2])
			if err1 == nil && err2 == nil && err3 == nil {
				p.Colors = append(p.Colors, RGB{uint8(r), uint8(g), uint8(b)})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found in palette %s", path)
	}
	return p, nil
}

// Lookup returns the interpolated color for a normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]
	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
