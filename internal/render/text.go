package render

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// LoadFace loads a TrueType/OpenType font at the given size. An empty path
// selects the bundled Go Regular font.
func LoadFace(path string, size float64) (font.Face, error) {
	data := goregular.TTF
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
	}
	tt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(tt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}
	return face, nil
}

// drawCentered draws text centred in r, truncated to fit its width.
func drawCentered(img *image.RGBA, r image.Rectangle, text string, face font.Face, col color.Color) {
	text = truncateText(text, face, r.Dx()-16)
	width := font.MeasureString(face, text).Ceil()
	m := face.Metrics()
	height := (m.Ascent + m.Descent).Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(r.Min.X + (r.Dx()-width)/2),
			Y: fixed.I(r.Min.Y+(r.Dy()-height)/2) + m.Ascent,
		},
	}
	d.DrawString(text)
}

// truncateText truncates text to fit within maxWidth, adding an ellipsis if
// needed.
func truncateText(text string, face font.Face, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	if font.MeasureString(face, text).Ceil() <= maxWidth {
		return text
	}

	const ellipsis = "…"
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if font.MeasureString(face, string(runes[:mid])+ellipsis).Ceil() <= maxWidth {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + ellipsis
}
