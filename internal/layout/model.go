package layout

import (
	"fmt"
	"image"
)

// Model holds every configured layout and tracks which one is active.
// Layouts are never modified after the model is built.
type Model struct {
	byName map[string]*Layout
	active *Layout
}

// NewModel creates a model over layouts with initial as the active layout.
func NewModel(layouts []*Layout, initial string) (*Model, error) {
	if len(layouts) == 0 {
		return nil, fmt.Errorf("%w: no layouts", ErrInvalid)
	}
	m := &Model{
		byName: make(map[string]*Layout, len(layouts)),
	}
	for _, l := range layouts {
		if _, dup := m.byName[l.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate layout %q", ErrInvalid, l.Name)
		}
		m.byName[l.Name] = l
	}
	if initial == "" {
		initial = layouts[0].Name
	}
	active, ok := m.byName[initial]
	if !ok {
		return nil, fmt.Errorf("initial layout %q: %w", initial, ErrNotFound)
	}
	m.active = active
	return m, nil
}

// Active returns the active layout.
func (m *Model) Active() *Layout { return m.active }

// SwitchTo makes the named layout active. An unknown name leaves the active
// layout unchanged.
func (m *Model) SwitchTo(name string) error {
	l, ok := m.byName[name]
	if !ok {
		return fmt.Errorf("switch to %q: %w", name, ErrNotFound)
	}
	m.active = l
	return nil
}

// ButtonAt hit-tests p against the active layout.
func (m *Model) ButtonAt(p image.Point) (Button, bool) {
	return m.active.ButtonAt(p)
}
