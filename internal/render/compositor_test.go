package render

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/phinze/fnrow/internal/layout"
)

type fakeDisplay struct {
	bounds   image.Rectangle
	presents []Frame
	fail     int
}

func (d *fakeDisplay) Bounds() image.Rectangle { return d.bounds }

func (d *fakeDisplay) Present(f *Frame) error {
	if d.fail > 0 {
		d.fail--
		return errors.New("vblank timeout")
	}
	d.presents = append(d.presents, *f)
	return nil
}

func (d *fakeDisplay) SetBrightness(int) error { return nil }

type countingIcons struct {
	calls int
	refs  []string
	err   error
}

func (p *countingIcons) Icon(ref string, size int) (image.Image, error) {
	p.calls++
	p.refs = append(p.refs, ref)
	if p.err != nil {
		return nil, p.err
	}
	return image.NewRGBA(image.Rect(0, 0, size, size)), nil
}

var bg = color.RGBA{200, 100, 50, 255}

func newTestCompositor(t *testing.T, icons IconProvider) (*Compositor, *fakeDisplay, *layout.Layout) {
	t.Helper()
	face, err := LoadFace("", 16)
	if err != nil {
		t.Fatal(err)
	}
	l, err := layout.New("fn", bg, []layout.Button{
		{ID: "f1", Region: image.Rect(0, 6, 100, 54), Kind: layout.KindText, Label: "F1", Enabled: true},
		{ID: "f2", Region: image.Rect(116, 6, 216, 54), Kind: layout.KindText, Label: "F2", Enabled: true},
		{ID: "mute", Region: image.Rect(232, 6, 332, 54), Kind: layout.KindIcon, Icon: "mute", Label: "Mute", Enabled: true},
		{ID: "clock", Region: image.Rect(348, 6, 448, 54), Kind: layout.KindTime, Label: "15:04", Enabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := &fakeDisplay{bounds: image.Rect(0, 0, 500, 60)}
	c := NewCompositor(d, Options{
		Theme:        DefaultTheme(),
		Face:         face,
		Icons:        icons,
		ShowOutlines: true,
	})
	return c, d, l
}

var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestPresentUnchangedFrameOnce(t *testing.T) {
	c, d, l := newTestCompositor(t, &countingIcons{})
	scene := Scene{Layout: l, Brightness: MaxBrightness, Now: noon}

	f := c.Render(scene)
	if err := c.Present(f); err != nil {
		t.Fatal(err)
	}
	if err := c.Present(f); err != nil {
		t.Fatal(err)
	}
	f = c.Render(scene)
	if len(f.Damage) != 0 {
		t.Errorf("unchanged scene damage = %v", f.Damage)
	}
	if err := c.Present(f); err != nil {
		t.Fatal(err)
	}
	if len(d.presents) != 1 {
		t.Errorf("display written %d times, want 1", len(d.presents))
	}
}

func TestBrightnessOnlyReusesBase(t *testing.T) {
	c, d, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))
	draws := c.draws

	f := c.Render(Scene{Layout: l, Brightness: 128, Now: noon})
	if c.draws != draws {
		t.Errorf("brightness change redrew %d buttons", c.draws-draws)
	}
	if len(f.Damage) != 1 || f.Damage[0] != d.bounds {
		t.Errorf("damage = %v, want full frame", f.Damage)
	}
	got := f.Pix.RGBAAt(0, 0)
	want := color.RGBA{100, 50, 25, 255}
	if got != want {
		t.Errorf("scaled background = %v, want %v", got, want)
	}
	if f.Brightness != 128 {
		t.Errorf("frame brightness = %d", f.Brightness)
	}
}

func TestPressedDamagesOnlyButton(t *testing.T) {
	c, _, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))
	draws := c.draws

	f := c.Render(Scene{Layout: l, Pressed: map[string]bool{"f2": true}, Brightness: MaxBrightness, Now: noon})
	if c.draws-draws != 1 {
		t.Errorf("redrew %d buttons, want 1", c.draws-draws)
	}
	if len(f.Damage) != 1 || f.Damage[0] != image.Rect(116, 6, 216, 54) {
		t.Errorf("damage = %v, want f2 region", f.Damage)
	}
	if f.Pix.RGBAAt(166, 8) == f.Pix.RGBAAt(50, 8) {
		t.Errorf("pressed button looks like an idle one")
	}
}

func TestClockTickDamagesClock(t *testing.T) {
	c, _, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))

	f := c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon.Add(30 * time.Second)})
	if len(f.Damage) != 0 {
		t.Errorf("same minute damage = %v", f.Damage)
	}
	f = c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon.Add(time.Minute)})
	if len(f.Damage) != 1 || f.Damage[0] != image.Rect(348, 6, 448, 54) {
		t.Errorf("damage = %v, want clock region", f.Damage)
	}
}

func TestLayoutChangeIsFullFrame(t *testing.T) {
	c, d, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))

	other, err := layout.New("media", color.Black, []layout.Button{
		{ID: "play", Region: image.Rect(0, 6, 200, 54), Kind: layout.KindText, Label: "Play", Enabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := c.Render(Scene{Layout: other, Brightness: MaxBrightness, Now: noon})
	if len(f.Damage) != 1 || f.Damage[0] != d.bounds {
		t.Errorf("damage = %v, want full frame", f.Damage)
	}
	if got := f.Pix.RGBAAt(400, 30); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("old clock still visible: %v", got)
	}
}

func TestPresentErrorRetainsDamage(t *testing.T) {
	c, d, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))

	d.fail = 1
	f := c.Render(Scene{Layout: l, Pressed: map[string]bool{"f1": true}, Brightness: MaxBrightness, Now: noon})
	if err := c.Present(f); err == nil {
		t.Fatal("expected present error")
	}
	if !c.Pending() {
		t.Fatal("damage dropped after failed present")
	}

	f = c.Render(Scene{Layout: l, Pressed: map[string]bool{"f1": true}, Brightness: MaxBrightness, Now: noon})
	if len(f.Damage) != 1 || f.Damage[0] != image.Rect(0, 6, 100, 54) {
		t.Errorf("retry damage = %v, want f1 region", f.Damage)
	}
	if err := c.Present(f); err != nil {
		t.Fatal(err)
	}
	if len(d.presents) != 2 || c.Pending() {
		t.Errorf("presents = %d, pending = %v", len(d.presents), c.Pending())
	}
}

func TestMissingIconFallsBackOnce(t *testing.T) {
	icons := &countingIcons{err: ErrIconNotFound}
	c, _, l := newTestCompositor(t, icons)
	c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon})
	c.Invalidate()
	c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon})
	if icons.calls != 1 {
		t.Errorf("icon provider called %d times, want 1", icons.calls)
	}
}

func TestIconsCached(t *testing.T) {
	icons := &countingIcons{}
	c, _, l := newTestCompositor(t, icons)
	c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon})
	c.Render(Scene{Layout: l, Pressed: map[string]bool{"mute": true}, Brightness: MaxBrightness, Now: noon})
	if icons.calls != 1 {
		t.Errorf("icon provider called %d times, want 1", icons.calls)
	}
}

func TestBlank(t *testing.T) {
	c, d, l := newTestCompositor(t, &countingIcons{})
	c.Present(c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon}))
	if err := c.Blank(); err != nil {
		t.Fatal(err)
	}
	last := d.presents[len(d.presents)-1]
	if got := last.Pix.RGBAAt(50, 30); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("blank frame pixel = %v", got)
	}
}

type fakeBattery struct {
	pct      int
	charging bool
}

func (b fakeBattery) Level() (int, bool, bool) { return b.pct, b.charging, true }

func TestBatteryModes(t *testing.T) {
	tests := []struct {
		name     string
		mode     layout.BatteryMode
		battery  fakeBattery
		icon     string
		drawText bool
	}{
		{"percentage", layout.BatteryPercentage, fakeBattery{57, false}, "", true},
		{"percentage charging", layout.BatteryPercentage, fakeBattery{57, true}, "bolt", true},
		{"icon", layout.BatteryIcon, fakeBattery{75, false}, "battery_5_bar", false},
		{"icon full", layout.BatteryIcon, fakeBattery{100, false}, "battery_full", false},
		{"icon empty", layout.BatteryIcon, fakeBattery{0, false}, "battery_0_bar", false},
		{"both charging", layout.BatteryBoth, fakeBattery{85, true}, "battery_charging_90", true},
		{"both low charging", layout.BatteryBoth, fakeBattery{15, true}, "battery_charging_20", true},
	}
	face, err := LoadFace("", 16)
	if err != nil {
		t.Fatal(err)
	}
	region := image.Rect(0, 6, 200, 54)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l, err := layout.New("info", bg, []layout.Button{
				{ID: "battery", Region: region, Kind: layout.KindBattery, Battery: test.mode},
			})
			if err != nil {
				t.Fatal(err)
			}
			icons := &countingIcons{}
			d := &fakeDisplay{bounds: image.Rect(0, 0, 200, 60)}
			c := NewCompositor(d, Options{
				Theme:   DefaultTheme(),
				Face:    face,
				Icons:   icons,
				Battery: test.battery,
			})
			f := c.Render(Scene{Layout: l, Brightness: MaxBrightness, Now: noon})

			var want []string
			if test.icon != "" {
				want = []string{test.icon}
			}
			if len(icons.refs) != len(want) || (len(want) == 1 && icons.refs[0] != want[0]) {
				t.Errorf("icons requested = %v, want %v", icons.refs, want)
			}

			// The fake icons are transparent, so anything off the fill
			// colour inside the rounded corners is text.
			inner := region.Inset(10)
			fill := f.Pix.RGBAAt(inner.Min.X, inner.Min.Y)
			text := false
			for y := inner.Min.Y; y < inner.Max.Y && !text; y++ {
				for x := inner.Min.X; x < inner.Max.X; x++ {
					if f.Pix.RGBAAt(x, y) != fill {
						text = true
						break
					}
				}
			}
			if text != test.drawText {
				t.Errorf("text drawn = %v, want %v", text, test.drawText)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		err  bool
	}{
		{in: "#ff8000", want: color.RGBA{255, 128, 0, 255}},
		{in: "0083c2", want: color.RGBA{0, 131, 194, 255}},
		{in: "Red", want: color.RGBA{255, 0, 0, 255}},
		{in: "#fff", err: true},
		{in: "nope", err: true},
	}
	for _, test := range tests {
		got, err := ParseColor(test.in)
		if (err != nil) != test.err {
			t.Errorf("ParseColor(%q) error = %v", test.in, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseColor(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}
