package report

import (
	"fmt"
	"math"

	"depaudit/internal/shared/util"
)

// palette hands out one hue per duplicated artifact and one shade per
// occurrence of it.
type palette struct {
	shades map[string][]string
	next   map[string]int
}

func newPalette(duplicates map[string]int) *palette {
	p := &palette{
		shades: make(map[string][]string, len(duplicates)),
		next:   make(map[string]int, len(duplicates)),
	}
	names := util.SortedKeys(duplicates)

	hueStep := 360.0 / float64(len(names)+1)
	for i, name := range names {
		count := duplicates[name]
		shadeStep := 45.0 / float64(count+1)
		hue := float64(i) * hueStep
		colors := make([]string, 0, count)
		for s := 0; s < count; s++ {
			colors = append(colors, hslToHex(hue, 60, 50+float64(s)*shadeStep))
		}
		p.shades[name] = colors
	}
	return p
}

func (p *palette) has(name string) bool {
	_, ok := p.shades[name]
	return ok
}

// winner returns the first shade of the group.
func (p *palette) winner(name string) string {
	return p.shades[name][0]
}

// loser returns the next unused shade after the winner's, wrapping when a
// group has more losers than shades.
func (p *palette) loser(name string) string {
	colors := p.shades[name]
	idx := p.next[name]
	if idx == 0 {
		idx = 1
	}
	p.next[name] = idx + 1
	if len(colors) == 1 {
		return colors[0]
	}
	return colors[1+(idx-1)%(len(colors)-1)]
}

// hslToHex converts hue (degrees), saturation and lightness (percent).
func hslToHex(h, s, l float64) string {
	s /= 100
	l /= 100
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g = c, x
	case h < 120:
		r, g = x, c
	case h < 180:
		g, b = c, x
	case h < 240:
		g, b = x, c
	case h < 300:
		r, b = x, c
	default:
		r, b = c, x
	}
	return fmt.Sprintf("#%02x%02x%02x",
		int(math.Round((r+m)*255)),
		int(math.Round((g+m)*255)),
		int(math.Round((b+m)*255)))
}
