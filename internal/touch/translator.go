// Package touch translates raw touch contacts into logical button events.
package touch

import (
	"image"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/event"
	"github.com/phinze/fnrow/internal/layout"
)

// HitTester finds the button under a point.
type HitTester interface {
	ButtonAt(p image.Point) (layout.Button, bool)
}

// Activation is a logical button event together with the button it refers
// to. The button is the one the contact started on, even if the active
// layout has changed since.
type Activation struct {
	Event  event.Button
	Button layout.Button
}

type contactState uint8

const (
	// stateIgnored contacts started outside any button, were debounced or
	// landed while the panel was asleep. They produce no events.
	stateIgnored contactState = iota
	stateDown
	stateCancelled
)

type contact struct {
	id      int
	origin  image.Point
	current image.Point
	start   time.Time
	button  layout.Button
	state   contactState
}

// Translator tracks live contacts and turns them into button events. Every
// Down it emits is followed by exactly one Tap or Cancelled for the same
// contact.
type Translator struct {
	slide    int
	debounce time.Duration

	contacts map[int]*contact
	lastTap  map[string]time.Time
}

// New creates a Translator. A contact that moves more than slide pixels
// outside its button cancels the press; a press landing on a button less
// than debounce after that button's previous tap is dropped.
func New(slide int, debounce time.Duration) *Translator {
	return &Translator{
		slide:    slide,
		debounce: debounce,
		contacts: make(map[int]*contact),
		lastTap:  make(map[string]time.Time),
	}
}

// SetTolerances changes the slide and debounce thresholds.
func (t *Translator) SetTolerances(slide int, debounce time.Duration) {
	t.slide = slide
	t.debounce = debounce
}

// Feed processes one contact event. hit is consulted only for new contacts;
// a nil hit tracks the contact without activating anything.
func (t *Translator) Feed(ev event.Contact, hit HitTester) []Activation {
	switch ev.Phase {
	case event.ContactDown:
		return t.down(ev, hit)
	case event.ContactMove:
		return t.move(ev)
	case event.ContactUp:
		return t.up(ev)
	}
	return nil
}

func (t *Translator) down(ev event.Contact, hit HitTester) []Activation {
	var out []Activation
	if stale, ok := t.contacts[ev.ID]; ok {
		// The reader lost the previous up for this slot.
		out = append(out, t.cancel(stale)...)
	}
	c := &contact{
		id:      ev.ID,
		origin:  ev.Point,
		current: ev.Point,
		start:   ev.Time,
	}
	t.contacts[ev.ID] = c
	if hit == nil {
		return out
	}
	b, ok := hit.ButtonAt(ev.Point)
	if !ok {
		return out
	}
	if last, ok := t.lastTap[b.ID]; ok && ev.Time.Sub(last) < t.debounce {
		log.Debugf("Dropping bounced press on %s", b.ID)
		return out
	}
	c.button = b
	c.state = stateDown
	return append(out, Activation{
		Event:  event.Button{ButtonID: b.ID, Kind: event.ButtonDown},
		Button: b,
	})
}

func (t *Translator) move(ev event.Contact) []Activation {
	c, ok := t.contacts[ev.ID]
	if !ok {
		return nil
	}
	c.current = ev.Point
	if c.state != stateDown || t.inside(c) {
		return nil
	}
	log.Debugf("Contact %d slid off %s", c.id, c.button.ID)
	c.state = stateCancelled
	return []Activation{{
		Event:  event.Button{ButtonID: c.button.ID, Kind: event.ButtonCancelled},
		Button: c.button,
	}}
}

func (t *Translator) up(ev event.Contact) []Activation {
	c, ok := t.contacts[ev.ID]
	if !ok {
		return nil
	}
	delete(t.contacts, ev.ID)
	if c.state != stateDown {
		return nil
	}
	c.current = ev.Point
	kind := event.ButtonTap
	if !t.inside(c) {
		kind = event.ButtonCancelled
	} else {
		t.lastTap[c.button.ID] = ev.Time
	}
	return []Activation{{
		Event:  event.Button{ButtonID: c.button.ID, Kind: kind},
		Button: c.button,
	}}
}

func (t *Translator) cancel(c *contact) []Activation {
	delete(t.contacts, c.id)
	if c.state != stateDown {
		return nil
	}
	c.state = stateCancelled
	return []Activation{{
		Event:  event.Button{ButtonID: c.button.ID, Kind: event.ButtonCancelled},
		Button: c.button,
	}}
}

func (t *Translator) inside(c *contact) bool {
	return c.current.In(c.button.Region.Inset(-t.slide))
}

// CancelAll ends every live contact, emitting Cancelled for pressed ones.
func (t *Translator) CancelAll() []Activation {
	ids := make([]int, 0, len(t.contacts))
	for id := range t.contacts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []Activation
	for _, id := range ids {
		out = append(out, t.cancel(t.contacts[id])...)
	}
	return out
}

// Pressed returns the ids of buttons currently held by a contact.
func (t *Translator) Pressed() map[string]bool {
	p := make(map[string]bool)
	for _, c := range t.contacts {
		if c.state == stateDown {
			p[c.button.ID] = true
		}
	}
	return p
}

// Live returns the number of tracked contacts.
func (t *Translator) Live() int { return len(t.contacts) }
