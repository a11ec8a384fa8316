// Package keys turns logical button activations into press/release events
// on a virtual keyboard.
package keys

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/event"
)

// Sink is a virtual keyboard accepting key press and release events.
type Sink interface {
	KeyDown(code int) error
	KeyUp(code int) error
	Close() error
}

// Action is the list of key codes a button emits. Codes are pressed in order
// and released in reverse order, so modifiers can lead a chord.
type Action struct {
	Codes []int

	// Repeat makes the last code repeat while the button is held.
	Repeat bool
}

// Empty reports whether the action emits nothing.
func (a Action) Empty() bool { return len(a.Codes) == 0 }

type hold struct {
	action Action
	next   time.Time
}

// Synthesizer emits key events for button activations and guarantees every
// press is eventually paired with a release.
type Synthesizer struct {
	sink     Sink
	delay    time.Duration
	interval time.Duration

	holds   map[string]*hold
	pressed map[int]int // press count per key code
	stuck   map[int]bool
}

// New creates a Synthesizer writing to sink. Repeating actions start
// repeating after delay and then every interval; a zero interval disables
// repetition.
func New(sink Sink, delay, interval time.Duration) *Synthesizer {
	return &Synthesizer{
		sink:     sink,
		delay:    delay,
		interval: interval,
		holds:    make(map[string]*hold),
		pressed:  make(map[int]int),
		stuck:    make(map[int]bool),
	}
}

// SetRepeat changes the repeat timing for subsequent presses.
func (s *Synthesizer) SetRepeat(delay, interval time.Duration) {
	s.delay = delay
	s.interval = interval
}

// Activate handles a logical event for the button id carrying action.
func (s *Synthesizer) Activate(id string, action Action, kind event.ButtonKind, now time.Time) {
	switch kind {
	case event.ButtonDown:
		// Holds are keyed by button id, so a second finger on the same
		// button replaces the first one's hold instead of stacking.
		if _, ok := s.holds[id]; ok {
			s.release(id)
		}
		if action.Empty() {
			return
		}
		s.press(action.Codes)
		h := &hold{action: action}
		if action.Repeat && s.interval > 0 {
			h.next = now.Add(s.delay)
		}
		s.holds[id] = h
	case event.ButtonTap, event.ButtonCancelled:
		s.release(id)
	}
}

// Tick emits due repeats for held buttons and returns how many were emitted.
func (s *Synthesizer) Tick(now time.Time) int {
	n := 0
	for _, id := range s.heldIDs() {
		h := s.holds[id]
		if h.next.IsZero() || now.Before(h.next) {
			continue
		}
		s.repeat(h.action)
		n++
		h.next = h.next.Add(s.interval)
		if !h.next.After(now) {
			// The loop stalled; skip the missed repeats.
			h.next = now.Add(s.interval)
		}
	}
	return n
}

// Held reports whether any button currently holds keys down.
func (s *Synthesizer) Held() bool { return len(s.holds) > 0 }

// Pressed returns the key codes currently held down, sorted.
func (s *Synthesizer) Pressed() []int {
	codes := make([]int, 0, len(s.pressed))
	for c := range s.pressed {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// ReleaseAll releases every key held by any button, and retries releases
// that previously failed.
func (s *Synthesizer) ReleaseAll() {
	for _, id := range s.heldIDs() {
		s.release(id)
	}
	for c := range s.stuck {
		if err := s.sink.KeyUp(c); err != nil {
			log.WithError(err).Warnf("Failed to release key %d", c)
			continue
		}
		delete(s.stuck, c)
	}
}

// Close releases all keys and closes the sink.
func (s *Synthesizer) Close() error {
	s.ReleaseAll()
	return s.sink.Close()
}

func (s *Synthesizer) heldIDs() []string {
	ids := make([]string, 0, len(s.holds))
	for id := range s.holds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Synthesizer) press(codes []int) {
	for _, c := range codes {
		if s.pressed[c] == 0 {
			log.Debugf("Key %d down", c)
			if err := s.sink.KeyDown(c); err != nil {
				log.WithError(err).Warnf("Failed to press key %d", c)
			}
		}
		s.pressed[c]++
	}
}

func (s *Synthesizer) release(id string) {
	h, ok := s.holds[id]
	if !ok {
		return
	}
	delete(s.holds, id)
	codes := h.action.Codes
	for i := len(codes) - 1; i >= 0; i-- {
		c := codes[i]
		s.pressed[c]--
		if s.pressed[c] > 0 {
			continue
		}
		delete(s.pressed, c)
		log.Debugf("Key %d up", c)
		if err := s.sink.KeyUp(c); err != nil {
			log.WithError(err).Warnf("Failed to release key %d", c)
			s.stuck[c] = true
		}
	}
}

func (s *Synthesizer) repeat(a Action) {
	c := a.Codes[len(a.Codes)-1]
	if err := s.sink.KeyUp(c); err != nil {
		log.WithError(err).Warnf("Failed to repeat key %d", c)
		return
	}
	if err := s.sink.KeyDown(c); err != nil {
		log.WithError(err).Warnf("Failed to repeat key %d", c)
	}
}
