// Package layout describes the buttons shown on the panel and which set of
// them is active.
package layout

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/phinze/fnrow/internal/keys"
)

var (
	// ErrNotFound is returned when switching to a layout that does not exist.
	ErrNotFound = errors.New("layout not found")

	// ErrInvalid is returned when a layout violates a construction rule.
	ErrInvalid = errors.New("invalid layout")
)

// Kind selects how a button is drawn.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindIcon
	KindTime
	KindBattery
	KindSpacer
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindIcon:
		return "icon"
	case KindTime:
		return "time"
	case KindBattery:
		return "battery"
	case KindSpacer:
		return "spacer"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// BatteryMode selects what a KindBattery button shows.
type BatteryMode uint8

const (
	// BatteryPercentage shows the charge as text, with a bolt while charging.
	BatteryPercentage BatteryMode = iota
	// BatteryIcon shows a gauge icon only.
	BatteryIcon
	// BatteryBoth shows the gauge icon followed by the percentage.
	BatteryBoth
)

// Button is a touchable region of a layout.
type Button struct {
	ID     string
	Region image.Rectangle
	Kind   Kind

	// Icon is the icon reference for KindIcon buttons.
	Icon string

	// Label is the text for KindText buttons, the time layout for KindTime
	// buttons and the fallback text for icons that fail to load.
	Label string

	Battery BatteryMode

	Action  keys.Action
	Enabled bool
}

// Touchable reports whether touching the button produces button events.
// Clock labels are display only.
func (b Button) Touchable() bool {
	return b.Enabled && b.Kind != KindTime && b.Kind != KindSpacer
}

// Layout is a named, ordered set of non-overlapping buttons.
type Layout struct {
	Name       string
	Background color.RGBA
	Buttons    []Button
}

// New validates the buttons and builds a layout.
func New(name string, background color.Color, buttons []Button) (*Layout, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalid)
	}
	if len(buttons) == 0 {
		return nil, fmt.Errorf("%w: layout %q has no buttons", ErrInvalid, name)
	}
	ids := make(map[string]bool, len(buttons))
	for i, b := range buttons {
		if b.ID == "" {
			return nil, fmt.Errorf("%w: layout %q button %d has no id", ErrInvalid, name, i)
		}
		if ids[b.ID] {
			return nil, fmt.Errorf("%w: layout %q has duplicate button %q", ErrInvalid, name, b.ID)
		}
		ids[b.ID] = true
		if b.Region.Empty() {
			return nil, fmt.Errorf("%w: layout %q button %q has an empty region", ErrInvalid, name, b.ID)
		}
		for _, o := range buttons[:i] {
			if b.Region.Overlaps(o.Region) {
				return nil, fmt.Errorf("%w: layout %q buttons %q and %q overlap", ErrInvalid, name, o.ID, b.ID)
			}
		}
	}
	l := &Layout{
		Name:       name,
		Background: color.RGBAModel.Convert(background).(color.RGBA),
		Buttons:    make([]Button, len(buttons)),
	}
	copy(l.Buttons, buttons)
	return l, nil
}

// ButtonAt returns the touchable button whose region contains p.
func (l *Layout) ButtonAt(p image.Point) (Button, bool) {
	for _, b := range l.Buttons {
		if b.Touchable() && p.In(b.Region) {
			return b, true
		}
	}
	return Button{}, false
}

// Button returns the button with the given id.
func (l *Layout) Button(id string) (Button, bool) {
	for _, b := range l.Buttons {
		if b.ID == id {
			return b, true
		}
	}
	return Button{}, false
}

// Dynamic reports whether the layout shows content that changes over time.
func (l *Layout) Dynamic() bool {
	for _, b := range l.Buttons {
		if b.Kind == KindTime || b.Kind == KindBattery {
			return true
		}
	}
	return false
}

// Regions splits panel into button regions. Each entry of stretches is the
// number of virtual slots a button spans; slots are separated by spacing
// pixels and a multi-slot button also covers the gaps it spans. Regions take
// the middle 80% of the panel height.
func Regions(panel image.Rectangle, stretches []int, spacing int) []image.Rectangle {
	slots := 0
	for _, s := range stretches {
		slots += max(s, 1)
	}
	if slots == 0 {
		return nil
	}
	slotWidth := float64(panel.Dx()-spacing*(slots-1)) / float64(slots)
	pitch := slotWidth + float64(spacing)
	top := panel.Min.Y + panel.Dy()/10
	bottom := panel.Max.Y - panel.Dy()/10

	regions := make([]image.Rectangle, 0, len(stretches))
	start := 0
	for _, s := range stretches {
		end := start + max(s, 1)
		left := panel.Min.X + int(float64(start)*pitch)
		right := panel.Min.X + int(float64(end)*pitch-float64(spacing))
		regions = append(regions, image.Rect(left, top, right, bottom))
		start = end
	}
	return regions
}
