package keys

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/phinze/fnrow/internal/event"
)

type recordingSink struct {
	events []string
	down   map[int]bool
	failUp bool
	closed bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{down: make(map[int]bool)}
}

func (s *recordingSink) KeyDown(code int) error {
	s.events = append(s.events, fmt.Sprintf("+%d", code))
	s.down[code] = true
	return nil
}

func (s *recordingSink) KeyUp(code int) error {
	if s.failUp {
		return errors.New("write failed")
	}
	s.events = append(s.events, fmt.Sprintf("-%d", code))
	delete(s.down, code)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func mustCode(t *testing.T, name string) int {
	t.Helper()
	c, err := Code(name)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"F1", 59},
		{"f5", 63},
		{"VolumeDown", 114},
		{"KEY_VOLUMEUP", 115},
		{"Brightness_Up", 225},
		{"Esc", 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Code(test.name)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Errorf("Code(%q) = %d, want %d", test.name, got, test.want)
			}
		})
	}
	if _, err := Code("NotAKey"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Code(NotAKey) error = %v, want ErrUnknownKey", err)
	}
}

func TestParseRepeat(t *testing.T) {
	a, err := Parse([]string{"VolumeDown"})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Repeat {
		t.Error("volume action does not repeat")
	}
	a, err = Parse([]string{"F1"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Repeat {
		t.Error("F1 action repeats")
	}
}

func TestMomentaryTap(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 300*time.Millisecond, 300*time.Millisecond)
	f1 := Action{Codes: []int{mustCode(t, "F1")}}
	now := time.Unix(0, 0)

	s.Activate("f1", f1, event.ButtonDown, now)
	s.Tick(now.Add(time.Second))
	s.Activate("f1", f1, event.ButtonTap, now.Add(time.Second))

	want := []string{"+59", "-59"}
	if fmt.Sprint(sink.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", sink.events, want)
	}
}

func TestCancelReleases(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 300*time.Millisecond, 300*time.Millisecond)
	f1 := Action{Codes: []int{mustCode(t, "F1")}}
	now := time.Unix(0, 0)

	s.Activate("f1", f1, event.ButtonDown, now)
	s.Activate("f1", f1, event.ButtonCancelled, now.Add(50*time.Millisecond))

	if len(sink.down) != 0 {
		t.Errorf("keys left pressed: %v", sink.down)
	}
	if len(s.Pressed()) != 0 {
		t.Errorf("Pressed() = %v, want none", s.Pressed())
	}
}

func TestChordOrder(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 0, 0)
	a := Action{Codes: []int{mustCode(t, "LeftCtrl"), mustCode(t, "F5")}}
	now := time.Unix(0, 0)

	s.Activate("reload", a, event.ButtonDown, now)
	s.Activate("reload", a, event.ButtonTap, now)

	want := []string{"+29", "+63", "-63", "-29"}
	if fmt.Sprint(sink.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", sink.events, want)
	}
}

// Holding volume-down for 2s with a 300ms repeat interval.
func TestRepeatWhileHeld(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 300*time.Millisecond, 300*time.Millisecond)
	vol, err := Parse([]string{"VolumeDown"})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Unix(100, 0)

	s.Activate("f5", vol, event.ButtonDown, start)
	repeats := 0
	for ms := 50; ms < 2000; ms += 50 {
		repeats += s.Tick(start.Add(time.Duration(ms) * time.Millisecond))
	}
	s.Activate("f5", vol, event.ButtonTap, start.Add(2000*time.Millisecond))
	s.Tick(start.Add(3000 * time.Millisecond))

	if repeats != 6 {
		t.Errorf("repeats = %d, want 6", repeats)
	}
	presses, releases := 0, 0
	for _, e := range sink.events {
		if e[0] == '+' {
			presses++
		} else {
			releases++
		}
	}
	if presses != 7 || releases != 7 {
		t.Errorf("presses = %d, releases = %d, want 7 each", presses, releases)
	}
	if sink.events[len(sink.events)-1] != "-114" {
		t.Errorf("last event = %s, want final release", sink.events[len(sink.events)-1])
	}
	if len(sink.down) != 0 {
		t.Errorf("keys left pressed: %v", sink.down)
	}
}

func TestSharedKeyRefcount(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 0, 0)
	a := Action{Codes: []int{mustCode(t, "F1")}}
	now := time.Unix(0, 0)

	s.Activate("a", a, event.ButtonDown, now)
	s.Activate("b", a, event.ButtonDown, now)
	s.Activate("a", a, event.ButtonTap, now)
	if !sink.down[59] {
		t.Fatal("F1 released while still held by another button")
	}
	s.Activate("b", a, event.ButtonTap, now)
	if sink.down[59] {
		t.Fatal("F1 still pressed after both buttons released")
	}
}

func TestCloseFlushes(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 300*time.Millisecond, 300*time.Millisecond)
	now := time.Unix(0, 0)
	s.Activate("f1", Action{Codes: []int{mustCode(t, "F1")}}, event.ButtonDown, now)
	s.Activate("f2", Action{Codes: []int{mustCode(t, "F2")}}, event.ButtonDown, now)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if len(sink.down) != 0 {
		t.Errorf("keys left pressed after Close: %v", sink.down)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestReleaseAllRetriesFailedRelease(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 0, 0)
	now := time.Unix(0, 0)
	f1 := Action{Codes: []int{mustCode(t, "F1")}}

	s.Activate("f1", f1, event.ButtonDown, now)
	sink.failUp = true
	s.Activate("f1", f1, event.ButtonTap, now)
	if !sink.down[59] {
		t.Fatal("expected F1 to remain down after failed release")
	}
	sink.failUp = false
	s.ReleaseAll()
	if sink.down[59] {
		t.Error("F1 still down after ReleaseAll")
	}
}

func TestSecondContactSharesHold(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, 0, 0)
	f1 := Action{Codes: []int{mustCode(t, "F1")}}
	now := time.Unix(0, 0)

	s.Activate("f1", f1, event.ButtonDown, now)
	s.Activate("f1", f1, event.ButtonDown, now)
	s.Activate("f1", f1, event.ButtonTap, now)
	if len(sink.down) != 0 || s.Held() {
		t.Fatalf("first lift left keys held: %v", sink.down)
	}
	s.Activate("f1", f1, event.ButtonTap, now)

	want := []string{"+59", "-59", "+59", "-59"}
	if fmt.Sprint(sink.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", sink.events, want)
	}
}
