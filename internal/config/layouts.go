package config

import (
	"fmt"
	"image"

	"github.com/phinze/fnrow/internal/keys"
	"github.com/phinze/fnrow/internal/layout"
)

const (
	// buttonSpacing is the gap between adjacent button slots in pixels.
	buttonSpacing = 16

	// escWidth is the panel width from which every layout gets an Esc key;
	// narrower panels sit next to a physical one.
	escWidth = 2170
)

// Build places every configured layout on a panel of the given size.
func (c *Config) Build(panel image.Rectangle) ([]*layout.Layout, error) {
	out := make([]*layout.Layout, 0, len(c.Layouts))
	for _, ls := range c.Layouts {
		buttons := ls.Buttons
		if panel.Dx() >= escWidth {
			buttons = append([]ButtonSpec{escButton(buttons)}, buttons...)
		}
		stretches := make([]int, len(buttons))
		for i, b := range buttons {
			stretches[i] = b.Stretch
		}
		regions := layout.Regions(panel, stretches, buttonSpacing)

		placed := make([]layout.Button, len(buttons))
		for i, b := range buttons {
			placed[i] = layout.Button{
				ID:      b.ID,
				Region:  regions[i],
				Kind:    b.Kind,
				Icon:    b.Icon,
				Label:   b.Label,
				Battery: b.Battery,
				Action:  b.Action,
				Enabled: !b.Action.Empty(),
			}
		}
		l, err := layout.New(ls.Name, ls.Background, placed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		out = append(out, l)
	}
	return out, nil
}

// Model builds the layout model for a panel with the default layout active.
func (c *Config) Model(panel image.Rectangle) (*layout.Model, error) {
	ls, err := c.Build(panel)
	if err != nil {
		return nil, err
	}
	return layout.NewModel(ls, c.DefaultLayout)
}

// BaseLayouts lists the layouts a Fn tap cycles through.
func (c *Config) BaseLayouts() []string {
	var out []string
	for _, ls := range c.Layouts {
		if ls.Name != c.FnLayout {
			out = append(out, ls.Name)
		}
	}
	return out
}

func escButton(others []ButtonSpec) ButtonSpec {
	esc, _ := keys.Code("esc")
	id := "esc"
	for _, b := range others {
		if b.ID == id {
			id = "esc#0"
		}
	}
	return ButtonSpec{
		ID:      id,
		Kind:    layout.KindText,
		Label:   "esc",
		Action:  keys.Action{Codes: []int{esc}},
		Stretch: 1,
	}
}
