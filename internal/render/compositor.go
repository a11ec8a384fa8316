// Package render composes layouts into pixel frames and presents them to the
// panel.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"

	"github.com/phinze/fnrow/internal/layout"
)

// MaxBrightness is the full-scale software brightness.
const MaxBrightness = 255

// Display is a panel that accepts composited frames.
type Display interface {
	// Bounds is the logical (landscape) panel rectangle.
	Bounds() image.Rectangle

	// Present writes the damaged parts of f to the panel.
	Present(f *Frame) error

	// SetBrightness sets the hardware backlight in percent; 0 turns it off.
	SetBrightness(percent int) error
}

// Battery reports the charge of the system battery.
type Battery interface {
	Level() (percent int, charging bool, ok bool)
}

// Frame is a composited, brightness-scaled image of the whole panel. Damage
// lists the areas that changed since the previous frame.
type Frame struct {
	Pix        *image.RGBA
	Damage     []image.Rectangle
	Brightness int
	Seq        uint64
}

// Scene is everything needed to draw one frame.
type Scene struct {
	Layout     *layout.Layout
	Pressed    map[string]bool
	Brightness int
	Now        time.Time
}

// Options configure a Compositor.
type Options struct {
	Theme        Theme
	Face         font.Face
	Icons        IconProvider
	Battery      Battery
	ShowOutlines bool
	IconSize     int
}

// look is what a button was last drawn as.
type look struct {
	pressed bool
	label   string
	icon    string
	fill    color.RGBA
}

// Compositor renders scenes into frames. It keeps the last pre-brightness
// image so that unchanged buttons are not redrawn.
type Compositor struct {
	display Display
	opts    Options
	bounds  image.Rectangle

	base *image.RGBA
	out  *image.RGBA

	icons    map[string]image.Image
	iconErrs map[string]bool

	layout     *layout.Layout
	looks      map[string]look
	brightness int
	valid      bool

	seq       uint64
	presented uint64
	pending   []image.Rectangle
	frame     Frame

	// draws counts button redraws.
	draws int
}

// NewCompositor creates a compositor for the given display.
func NewCompositor(d Display, opts Options) *Compositor {
	if opts.IconSize <= 0 {
		opts.IconSize = 48
	}
	b := d.Bounds()
	return &Compositor{
		display:  d,
		opts:     opts,
		bounds:   b,
		base:     image.NewRGBA(b),
		out:      image.NewRGBA(b),
		icons:    make(map[string]image.Image),
		iconErrs: make(map[string]bool),
		looks:    make(map[string]look),
	}
}

// SetOptions replaces the drawing options, drops cached icons and forces a
// full redraw.
func (c *Compositor) SetOptions(opts Options) {
	if opts.IconSize <= 0 {
		opts.IconSize = 48
	}
	c.opts = opts
	c.icons = make(map[string]image.Image)
	c.iconErrs = make(map[string]bool)
	c.Invalidate()
}

// Invalidate forces the next Render to redraw every button.
func (c *Compositor) Invalidate() {
	c.valid = false
}

// Render composes scene and returns the resulting frame. If nothing changed
// the previous frame is returned with no damage.
func (c *Compositor) Render(scene Scene) *Frame {
	brightness := min(max(scene.Brightness, 0), MaxBrightness)
	var damage []image.Rectangle

	if !c.valid || scene.Layout != c.layout {
		c.drawAll(scene)
		damage = []image.Rectangle{c.bounds}
	} else {
		for _, b := range scene.Layout.Buttons {
			lk := c.lookOf(b, scene)
			if lk == c.looks[b.ID] {
				continue
			}
			c.drawButton(b, lk)
			damage = append(damage, b.Region)
		}
	}

	if brightness != c.brightness || !c.valid {
		c.scale(c.bounds, brightness)
		damage = []image.Rectangle{c.bounds}
	} else {
		for _, r := range damage {
			c.scale(r, brightness)
		}
	}
	c.layout = scene.Layout
	c.brightness = brightness
	c.valid = true

	damage = merge(append(c.pending, damage...))
	c.pending = nil
	if len(damage) == 0 {
		c.frame.Damage = nil
		return &c.frame
	}
	c.seq++
	c.frame = Frame{
		Pix:        c.out,
		Damage:     damage,
		Brightness: brightness,
		Seq:        c.seq,
	}
	return &c.frame
}

// Present writes f to the display. A frame that was already presented is not
// written again. On error the frame's damage is carried into the next frame.
func (c *Compositor) Present(f *Frame) error {
	if f == nil || len(f.Damage) == 0 || f.Seq <= c.presented {
		return nil
	}
	if err := c.display.Present(f); err != nil {
		c.pending = append(c.pending, f.Damage...)
		return fmt.Errorf("failed to present frame %d: %w", f.Seq, err)
	}
	c.presented = f.Seq
	return nil
}

// Redraws returns how many times a button has been drawn into the base
// image.
func (c *Compositor) Redraws() int {
	return c.draws
}

// Pending reports whether damage from a failed present awaits a retry.
func (c *Compositor) Pending() bool {
	return len(c.pending) > 0
}

// Blank presents an all-black frame.
func (c *Compositor) Blank() error {
	draw.Draw(c.out, c.bounds, image.Black, image.Point{}, draw.Src)
	c.valid = false
	c.seq++
	c.frame = Frame{Pix: c.out, Damage: []image.Rectangle{c.bounds}, Seq: c.seq}
	return c.Present(&c.frame)
}

func (c *Compositor) drawAll(scene Scene) {
	c.layout = scene.Layout
	draw.Draw(c.base, c.bounds, image.NewUniform(scene.Layout.Background), image.Point{}, draw.Src)
	c.looks = make(map[string]look, len(scene.Layout.Buttons))
	for _, b := range scene.Layout.Buttons {
		c.drawButton(b, c.lookOf(b, scene))
	}
}

// lookOf works out how b should appear in scene.
func (c *Compositor) lookOf(b layout.Button, scene Scene) look {
	th := c.opts.Theme
	lk := look{pressed: scene.Pressed[b.ID], label: b.Label}
	switch {
	case b.Kind == layout.KindSpacer:
		lk.fill = scene.Layout.Background
		return lk
	case lk.pressed:
		lk.fill = th.ButtonActive
	case c.opts.ShowOutlines && b.Touchable():
		lk.fill = th.ButtonInactive
	default:
		lk.fill = scene.Layout.Background
	}

	switch b.Kind {
	case layout.KindTime:
		lk.label = scene.Now.Format(b.Label)
	case layout.KindBattery:
		lk.label = "?"
		if c.opts.Battery == nil {
			break
		}
		pct, charging, ok := c.opts.Battery.Level()
		if !ok {
			break
		}
		lk.label = strconv.Itoa(pct) + "%"
		switch {
		case b.Battery != layout.BatteryPercentage:
			lk.icon = batteryIcon(pct, charging)
		case charging:
			lk.icon = "bolt"
		}
		switch {
		case charging:
			lk.fill = th.Success
		case pct < 10:
			lk.fill = th.Warning
		}
	}
	return lk
}

func (c *Compositor) drawButton(b layout.Button, lk look) {
	c.draws++
	c.looks[b.ID] = lk
	r := b.Region
	// Clear to the layout background before drawing the highlight.
	draw.Draw(c.base, r, image.NewUniform(c.background()), image.Point{}, draw.Src)
	if b.Kind == layout.KindSpacer {
		return
	}
	if lk.fill != c.background() {
		fillRounded(c.base, r, r.Dy()/6, lk.fill)
	}

	fg := c.opts.Theme.Foreground
	if b.Kind == layout.KindBattery {
		c.drawBattery(b, lk, fg)
		return
	}
	if b.Kind == layout.KindIcon {
		if glyph := c.icon(b.Icon, min(c.opts.IconSize, r.Dy())); glyph != nil {
			gb := glyph.Bounds()
			at := image.Pt(
				r.Min.X+(r.Dx()-gb.Dx())/2,
				r.Min.Y+(r.Dy()-gb.Dy())/2,
			)
			draw.Draw(c.base, gb.Sub(gb.Min).Add(at), glyph, gb.Min, draw.Over)
			return
		}
	}
	if c.opts.Face != nil && lk.label != "" {
		drawCentered(c.base, r, lk.label, c.opts.Face, fg)
	}
}

// drawBattery draws the gauge or bolt icon followed by the percentage. The
// percentage is left out in icon mode unless the icon is missing.
func (c *Compositor) drawBattery(b layout.Button, lk look, fg color.Color) {
	r := b.Region
	var glyph image.Image
	if lk.icon != "" {
		glyph = c.icon(lk.icon, min(c.opts.IconSize, r.Dy()))
	}
	if glyph == nil {
		if c.opts.Face != nil {
			drawCentered(c.base, r, lk.label, c.opts.Face, fg)
		}
		return
	}

	text := lk.label
	if b.Battery == layout.BatteryIcon || c.opts.Face == nil {
		text = ""
	}
	gb := glyph.Bounds()
	textWidth := 0
	if text != "" {
		textWidth = font.MeasureString(c.opts.Face, text).Ceil()
	}
	x := r.Min.X + (r.Dx()-gb.Dx()-textWidth)/2
	at := image.Pt(x, r.Min.Y+(r.Dy()-gb.Dy())/2)
	draw.Draw(c.base, gb.Sub(gb.Min).Add(at), glyph, gb.Min, draw.Over)
	if text != "" {
		// drawCentered keeps 8px of padding on either side.
		tr := image.Rect(x+gb.Dx()-8, r.Min.Y, x+gb.Dx()+textWidth+8, r.Max.Y)
		drawCentered(c.base, tr, text, c.opts.Face, fg)
	}
}

// batteryIcon names the gauge icon for a charge level.
func batteryIcon(pct int, charging bool) string {
	if charging {
		switch {
		case pct <= 20:
			return "battery_charging_20"
		case pct <= 30:
			return "battery_charging_30"
		case pct <= 50:
			return "battery_charging_50"
		case pct <= 60:
			return "battery_charging_60"
		case pct <= 80:
			return "battery_charging_80"
		case pct <= 99:
			return "battery_charging_90"
		}
		return "battery_charging_full"
	}
	switch {
	case pct <= 0:
		return "battery_0_bar"
	case pct <= 20:
		return "battery_1_bar"
	case pct <= 30:
		return "battery_2_bar"
	case pct <= 50:
		return "battery_3_bar"
	case pct <= 60:
		return "battery_4_bar"
	case pct <= 80:
		return "battery_5_bar"
	case pct <= 99:
		return "battery_6_bar"
	}
	return "battery_full"
}

func (c *Compositor) background() color.RGBA {
	if c.layout == nil {
		return c.opts.Theme.Background
	}
	return c.layout.Background
}

// icon returns the cached glyph for ref, or nil if it cannot be loaded.
func (c *Compositor) icon(ref string, size int) image.Image {
	key := ref + "@" + strconv.Itoa(size)
	if img, ok := c.icons[key]; ok {
		return img
	}
	if c.opts.Icons == nil || c.iconErrs[key] {
		return nil
	}
	img, err := c.opts.Icons.Icon(ref, size)
	if err != nil {
		log.WithError(err).WithField("icon", ref).Warn("Falling back to label")
		c.iconErrs[key] = true
		return nil
	}
	c.icons[key] = img
	return img
}

// scale copies r from the base image into the output, multiplying each
// colour channel by brightness/MaxBrightness.
func (c *Compositor) scale(r image.Rectangle, brightness int) {
	r = r.Intersect(c.bounds)
	if r.Empty() {
		return
	}
	var lut [256]uint8
	for i := range lut {
		lut[i] = uint8(i * brightness / MaxBrightness)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := c.base.PixOffset(r.Min.X, y)
		end := i + r.Dx()*4
		src := c.base.Pix[i:end]
		dst := c.out.Pix[i:end]
		for j := 0; j < len(src); j += 4 {
			dst[j] = lut[src[j]]
			dst[j+1] = lut[src[j+1]]
			dst[j+2] = lut[src[j+2]]
			dst[j+3] = 0xff
		}
	}
}

// fillRounded fills r with a rounded rectangle of the given corner radius.
func fillRounded(img *image.RGBA, r image.Rectangle, radius int, col color.Color) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	filler := rasterx.NewFiller(w, h, scanner)
	filler.SetColor(col)
	rad := float64(radius)
	rasterx.AddRoundRect(
		float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y),
		rad, rad, 0, rasterx.RoundGap, filler)
	filler.Draw()
}

// merge drops rectangles contained in others and collapses the list to the
// union bounds once it grows long.
func merge(rs []image.Rectangle) []image.Rectangle {
	var out []image.Rectangle
	for i, r := range rs {
		if r.Empty() {
			continue
		}
		covered := false
		for j, o := range rs {
			if i != j && r.In(o) && (r != o || j < i) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, r)
		}
	}
	if len(out) > 8 {
		u := out[0]
		for _, r := range out[1:] {
			u = u.Union(r)
		}
		return []image.Rectangle{u}
	}
	return out
}
