// Package config loads the daemon configuration from TOML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/keys"
	"github.com/phinze/fnrow/internal/layout"
	"github.com/phinze/fnrow/internal/render"
)

// ErrInvalid is returned for malformed or inconsistent configuration.
var ErrInvalid = errors.New("invalid configuration")

// Default file locations. The user file overrides the base file key by key.
const (
	BasePath = "/usr/share/fnrow/config.toml"
	UserPath = "/etc/fnrow/config.toml"
)

// Config is a fully validated configuration.
type Config struct {
	ShowButtonOutlines bool
	FontPath           string
	FontSize           float64
	IconSize           int

	// ActiveBrightness is the backlight level in percent while active.
	ActiveBrightness int
	// DimBrightness is the software brightness (0-255) while dimmed.
	DimBrightness int

	DimTimeout     time.Duration
	OffTimeout     time.Duration
	SlideTolerance int
	Debounce       time.Duration
	RepeatDelay    time.Duration
	RepeatInterval time.Duration
	FnTapThreshold time.Duration
	TickInterval   time.Duration

	DefaultLayout string
	FnLayout      string
	MediaLayout   string

	Theme render.Theme

	TouchDevice     string
	DisplayDevice   string
	BacklightDevice string

	Layouts []LayoutSpec
}

// LayoutSpec is a layout whose geometry is not yet known.
type LayoutSpec struct {
	Name       string
	Background color.RGBA
	Buttons    []ButtonSpec
}

// ButtonSpec describes one button before it is placed on the panel.
type ButtonSpec struct {
	ID      string
	Kind    layout.Kind
	Icon    string
	Label   string
	Battery layout.BatteryMode
	Action  keys.Action
	Stretch int
}

// file mirrors the TOML document.
type file struct {
	ShowButtonOutlines bool
	FontPath           string
	FontSize           float64
	IconSize           int
	ActiveBrightness   int
	DimBrightness      int
	DimTimeout         string
	OffTimeout         string
	SlideTolerance     int
	Debounce           string
	RepeatDelay        string
	RepeatInterval     string
	FnTapThreshold     string
	TickInterval       string
	DefaultLayout      string
	FnLayout           string
	MediaLayout        string
	Theme              themeFile
	TouchDevice        string
	DisplayDevice      string
	BacklightDevice    string
	Layouts            []layoutFile
}

type themeFile struct {
	Background     string
	Foreground     string
	ButtonInactive string
	ButtonActive   string
	Success        string
	Warning        string
}

type layoutFile struct {
	Name       string
	Background string
	Buttons    []buttonFile
}

type buttonFile struct {
	Icon    string
	Text    string
	Time    string
	Battery string
	Action  any
	Stretch int
	Repeat  *bool
}

func defaults() file {
	return file{
		FontSize:         24,
		IconSize:         48,
		ActiveBrightness: 50,
		DimBrightness:    64,
		DimTimeout:       "30s",
		OffTimeout:       "60s",
		SlideTolerance:   20,
		Debounce:         "50ms",
		RepeatDelay:      "400ms",
		RepeatInterval:   "150ms",
		FnTapThreshold:   "300ms",
		TickInterval:     "1s",
	}
}

// Load reads and merges the given files in order; each top-level key of a
// later file replaces the value from earlier ones. Missing files are skipped.
// The result is either a complete, validated configuration or an error.
func Load(paths ...string) (*Config, error) {
	merged := map[string]any{}
	found := 0
	for _, p := range paths {
		var doc map[string]any
		if _, err := toml.DecodeFile(p, &doc); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.WithField("path", p).Debug("Config file not present")
				continue
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, p, err)
		}
		found++
		for k, v := range doc {
			merged[k] = v
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: none of %s exist", ErrInvalid, strings.Join(paths, ", "))
	}
	return parse(merged)
}

// Parse reads a single TOML document.
func Parse(doc string) (*Config, error) {
	var m map[string]any
	if _, err := toml.Decode(doc, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return parse(m)
}

func parse(m map[string]any) (*Config, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	f := defaults()
	md, err := toml.Decode(buf.String(), &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for _, k := range md.Undecoded() {
		log.WithField("key", k.String()).Warn("Ignoring unknown config key")
	}
	return f.validate()
}

func (f file) validate() (*Config, error) {
	c := &Config{
		ShowButtonOutlines: f.ShowButtonOutlines,
		FontPath:           f.FontPath,
		FontSize:           f.FontSize,
		IconSize:           f.IconSize,
		ActiveBrightness:   f.ActiveBrightness,
		DimBrightness:      f.DimBrightness,
		SlideTolerance:     f.SlideTolerance,
		DefaultLayout:      f.DefaultLayout,
		FnLayout:           f.FnLayout,
		MediaLayout:        f.MediaLayout,
		TouchDevice:        f.TouchDevice,
		DisplayDevice:      f.DisplayDevice,
		BacklightDevice:    f.BacklightDevice,
	}

	durations := []struct {
		key string
		in  string
		out *time.Duration
	}{
		{"DimTimeout", f.DimTimeout, &c.DimTimeout},
		{"OffTimeout", f.OffTimeout, &c.OffTimeout},
		{"Debounce", f.Debounce, &c.Debounce},
		{"RepeatDelay", f.RepeatDelay, &c.RepeatDelay},
		{"RepeatInterval", f.RepeatInterval, &c.RepeatInterval},
		{"FnTapThreshold", f.FnTapThreshold, &c.FnTapThreshold},
		{"TickInterval", f.TickInterval, &c.TickInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%w: %s is negative", ErrInvalid, d.key)
		}
		*d.out = v
	}
	switch {
	case c.RepeatInterval == 0:
		return nil, fmt.Errorf("%w: RepeatInterval must be positive", ErrInvalid)
	case c.TickInterval == 0:
		return nil, fmt.Errorf("%w: TickInterval must be positive", ErrInvalid)
	case c.DimTimeout > 0 && c.OffTimeout > 0 && c.OffTimeout <= c.DimTimeout:
		return nil, fmt.Errorf("%w: OffTimeout must be longer than DimTimeout", ErrInvalid)
	case c.ActiveBrightness < 1 || c.ActiveBrightness > 100:
		return nil, fmt.Errorf("%w: ActiveBrightness %d is not in 1-100", ErrInvalid, c.ActiveBrightness)
	case c.DimBrightness < 0 || c.DimBrightness > render.MaxBrightness:
		return nil, fmt.Errorf("%w: DimBrightness %d is not in 0-255", ErrInvalid, c.DimBrightness)
	case c.SlideTolerance < 0:
		return nil, fmt.Errorf("%w: SlideTolerance is negative", ErrInvalid)
	case c.FontSize <= 0:
		return nil, fmt.Errorf("%w: FontSize must be positive", ErrInvalid)
	case c.IconSize <= 0:
		return nil, fmt.Errorf("%w: IconSize must be positive", ErrInvalid)
	}

	var err error
	if c.Theme, err = f.Theme.theme(); err != nil {
		return nil, err
	}

	if len(f.Layouts) == 0 {
		return nil, fmt.Errorf("%w: no layouts", ErrInvalid)
	}
	names := make(map[string]bool)
	for i, lf := range f.Layouts {
		ls, err := lf.spec(i, c.Theme)
		if err != nil {
			return nil, err
		}
		if names[ls.Name] {
			return nil, fmt.Errorf("%w: duplicate layout %q", ErrInvalid, ls.Name)
		}
		names[ls.Name] = true
		c.Layouts = append(c.Layouts, ls)
	}
	if c.DefaultLayout == "" {
		c.DefaultLayout = c.Layouts[0].Name
	}
	for key, name := range map[string]string{
		"DefaultLayout": c.DefaultLayout,
		"FnLayout":      c.FnLayout,
		"MediaLayout":   c.MediaLayout,
	} {
		if name != "" && !names[name] {
			return nil, fmt.Errorf("%w: %s names unknown layout %q", ErrInvalid, key, name)
		}
	}
	if c.FnLayout != "" && c.FnLayout == c.DefaultLayout {
		return nil, fmt.Errorf("%w: FnLayout and DefaultLayout are both %q", ErrInvalid, c.FnLayout)
	}
	return c, nil
}

func (t themeFile) theme() (render.Theme, error) {
	th := render.DefaultTheme()
	fields := []struct {
		key string
		in  string
		out *color.RGBA
	}{
		{"Background", t.Background, &th.Background},
		{"Foreground", t.Foreground, &th.Foreground},
		{"ButtonInactive", t.ButtonInactive, &th.ButtonInactive},
		{"ButtonActive", t.ButtonActive, &th.ButtonActive},
		{"Success", t.Success, &th.Success},
		{"Warning", t.Warning, &th.Warning},
	}
	for _, fl := range fields {
		if fl.in == "" {
			continue
		}
		c, err := render.ParseColor(fl.in)
		if err != nil {
			return th, fmt.Errorf("%w: Theme.%s: %w", ErrInvalid, fl.key, err)
		}
		*fl.out = c
	}
	return th, nil
}

func (lf layoutFile) spec(index int, th render.Theme) (LayoutSpec, error) {
	ls := LayoutSpec{Name: lf.Name, Background: th.Background}
	if ls.Name == "" {
		return ls, fmt.Errorf("%w: layout %d has no Name", ErrInvalid, index)
	}
	if lf.Background != "" {
		c, err := render.ParseColor(lf.Background)
		if err != nil {
			return ls, fmt.Errorf("%w: layout %q: %w", ErrInvalid, ls.Name, err)
		}
		ls.Background = c
	}
	if len(lf.Buttons) == 0 {
		return ls, fmt.Errorf("%w: layout %q has no buttons", ErrInvalid, ls.Name)
	}
	ids := make(map[string]int)
	for i, bf := range lf.Buttons {
		bs, err := bf.spec()
		if err != nil {
			return ls, fmt.Errorf("%w: layout %q button %d: %w", ErrInvalid, ls.Name, i, err)
		}
		bs.ID = uniqueID(ids, bs)
		ls.Buttons = append(ls.Buttons, bs)
	}
	return ls, nil
}

func (bf buttonFile) spec() (ButtonSpec, error) {
	bs := ButtonSpec{Stretch: bf.Stretch, Icon: bf.Icon, Label: bf.Text}
	if bs.Stretch == 0 {
		bs.Stretch = 1
	}
	if bs.Stretch < 0 {
		return bs, errors.New("negative stretch")
	}

	switch {
	case bf.Time != "" && (bf.Battery != "" || bf.Icon != "" || bf.Text != ""):
		return bs, errors.New("time cannot be combined with other content")
	case bf.Battery != "" && (bf.Icon != "" || bf.Text != ""):
		return bs, errors.New("battery cannot be combined with other content")
	case bf.Time != "":
		bs.Kind = layout.KindTime
		bs.Label = TimeLayout(bf.Time)
	case bf.Battery != "":
		bs.Kind = layout.KindBattery
		mode, ok := batteryModes[bf.Battery]
		if !ok {
			return bs, fmt.Errorf("unknown battery mode %q, want icon, percentage or both", bf.Battery)
		}
		bs.Battery = mode
	case bf.Icon != "":
		bs.Kind = layout.KindIcon
		if bs.Label == "" {
			bs.Label = bf.Icon
		}
	case bf.Text != "":
		bs.Kind = layout.KindText
	default:
		bs.Kind = layout.KindSpacer
	}

	names, err := actionNames(bf.Action)
	if err != nil {
		return bs, err
	}
	if bs.Action, err = keys.Parse(names); err != nil {
		return bs, err
	}
	if bf.Repeat != nil {
		bs.Action.Repeat = *bf.Repeat
	}
	return bs, nil
}

var batteryModes = map[string]layout.BatteryMode{
	"percentage": layout.BatteryPercentage,
	"icon":       layout.BatteryIcon,
	"both":       layout.BatteryBoth,
}

// actionNames accepts a single key name or an array of them.
func actionNames(v any) ([]string, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{a}, nil
	case []any:
		out := make([]string, 0, len(a))
		for _, e := range a {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("action entries must be strings, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("action must be a string or array of strings, got %T", v)
}

// uniqueID derives a readable id such as "f5" or "volumeup" for a button.
func uniqueID(seen map[string]int, bs ButtonSpec) string {
	base := strings.ToLower(bs.Label)
	switch bs.Kind {
	case layout.KindTime, layout.KindBattery, layout.KindSpacer:
		base = bs.Kind.String()
	case layout.KindIcon:
		base = strings.ToLower(bs.Icon)
	}
	base = strings.Join(strings.Fields(base), "-")
	if base == "" {
		base = "button"
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		return fmt.Sprintf("%s#%d", base, n)
	}
	return base
}
