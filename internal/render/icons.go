package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
)

// ErrIconNotFound is returned when no file matches an icon reference.
var ErrIconNotFound = errors.New("icon not found")

// IconProvider returns a size×size glyph for an icon reference.
type IconProvider interface {
	Icon(ref string, size int) (image.Image, error)
}

// FileIcons looks up icons as SVG or PNG files in a list of directories.
type FileIcons struct {
	Dirs []string

	// Color replaces currentColor in SVG icons.
	Color color.Color
}

// DefaultIconDirs are searched in order; the first holds local overrides.
var DefaultIconDirs = []string{"/etc/fnrow", "/usr/share/fnrow"}

// Icon implements IconProvider. ref is either an absolute path or a name
// looked up as <dir>/<ref>.svg and <dir>/<ref>.png.
func (f FileIcons) Icon(ref string, size int) (image.Image, error) {
	var candidates []string
	if filepath.IsAbs(ref) {
		candidates = []string{ref}
	} else {
		for _, dir := range f.Dirs {
			candidates = append(candidates,
				filepath.Join(dir, ref+".svg"),
				filepath.Join(dir, ref+".png"))
		}
	}

	lastErr := fmt.Errorf("%w: %s", ErrIconNotFound, ref)
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				lastErr = fmt.Errorf("read %s: %w", path, err)
			}
			continue
		}
		var img image.Image
		switch strings.ToLower(filepath.Ext(path)) {
		case ".svg":
			img, err = f.rasterize(string(data), size)
		default:
			img, err = decodeScaled(data, size)
		}
		if err != nil {
			lastErr = fmt.Errorf("load %s: %w", path, err)
			continue
		}
		return img, nil
	}
	return nil, lastErr
}

// rasterize renders an SVG document into a transparent size×size image.
func (f FileIcons) rasterize(svg string, size int) (image.Image, error) {
	col := f.Color
	if col == nil {
		col = color.White
	}
	svg = strings.ReplaceAll(svg, "currentColor", hexColor(col))

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	icon.SetTarget(0, 0, float64(size), float64(size))

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

// decodeScaled decodes a bitmap and scales it to size×size.
func decodeScaled(data []byte, size int) (image.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return src, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst, nil
}
