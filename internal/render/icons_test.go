package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

const squareSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24">
<rect x="0" y="0" width="24" height="24" fill="currentColor"/>
</svg>`

func writePNG(t *testing.T, path string, size int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileIconsSVG(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "square.svg"), []byte(squareSVG), 0o644); err != nil {
		t.Fatal(err)
	}
	icons := FileIcons{Dirs: []string{dir}, Color: color.RGBA{R: 255, A: 255}}
	img, err := icons.Icon("square", 32)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 32, 32) {
		t.Fatalf("bounds = %v", got)
	}
	r, g, _, a := img.At(16, 16).RGBA()
	if r>>8 != 255 || g != 0 || a>>8 != 255 {
		t.Errorf("center = %v, want currentColor replaced with red", img.At(16, 16))
	}
}

func TestFileIconsPNGScaled(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "dot.png"), 8, color.RGBA{G: 255, A: 255})

	img, err := FileIcons{Dirs: []string{dir}}.Icon("dot", 24)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 24, 24) {
		t.Fatalf("bounds = %v", got)
	}
	if _, g, _, _ := img.At(12, 12).RGBA(); g>>8 != 255 {
		t.Errorf("center = %v, want green", img.At(12, 12))
	}
}

func TestFileIconsOverrideOrder(t *testing.T) {
	local, shared := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(local, "dot.png"), 4, color.RGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(shared, "dot.png"), 4, color.RGBA{R: 255, A: 255})

	img, err := FileIcons{Dirs: []string{local, shared}}.Icon("dot", 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, b, _ := img.At(1, 1).RGBA(); b>>8 != 255 {
		t.Errorf("pixel = %v, want the first directory's icon", img.At(1, 1))
	}
}

func TestFileIconsErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	icons := FileIcons{Dirs: []string{dir}}

	if _, err := icons.Icon("absent", 16); !errors.Is(err, ErrIconNotFound) {
		t.Errorf("absent: err = %v, want ErrIconNotFound", err)
	}
	_, err := icons.Icon("broken", 16)
	if err == nil || errors.Is(err, ErrIconNotFound) {
		t.Errorf("broken: err = %v, want a decode error", err)
	}
}
