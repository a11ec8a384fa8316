package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Theme holds the colours used to draw the panel.
type Theme struct {
	Background     color.RGBA
	Foreground     color.RGBA
	ButtonInactive color.RGBA
	ButtonActive   color.RGBA
	Success        color.RGBA
	Warning        color.RGBA
}

// DefaultTheme returns the stock dark theme.
func DefaultTheme() Theme {
	return Theme{
		Background:     color.RGBA{0, 0, 0, 255},
		Foreground:     color.RGBA{255, 255, 255, 255},
		ButtonInactive: color.RGBA{51, 51, 51, 255},
		ButtonActive:   color.RGBA{102, 102, 102, 255},
		Success:        color.RGBA{55, 169, 55, 255},
		Warning:        color.RGBA{219, 50, 50, 255},
	}
}

// ParseColor parses "#rrggbb", "rrggbb" or a CSS colour name.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

// hexColor formats c for substitution into SVG documents.
func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}
