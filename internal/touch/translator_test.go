package touch

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/phinze/fnrow/internal/event"
	"github.com/phinze/fnrow/internal/layout"
)

var t0 = time.Unix(1000, 0)

func testLayout(t *testing.T) *layout.Layout {
	t.Helper()
	l, err := layout.New("fn", color.Black, []layout.Button{
		{ID: "f1", Region: image.Rect(0, 6, 100, 54), Kind: layout.KindText, Label: "F1", Enabled: true},
		{ID: "f2", Region: image.Rect(116, 6, 216, 54), Kind: layout.KindText, Label: "F2", Enabled: true},
		{ID: "f5", Region: image.Rect(232, 6, 332, 54), Kind: layout.KindText, Label: "F5", Enabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func contactAt(id int, phase event.Phase, x, y int, ms int) event.Contact {
	return event.Contact{
		ID:    id,
		Phase: phase,
		Point: image.Pt(x, y),
		Time:  t0.Add(time.Duration(ms) * time.Millisecond),
	}
}

func kinds(acts []Activation) []string {
	var out []string
	for _, a := range acts {
		out = append(out, a.Event.ButtonID+":"+a.Event.Kind.String())
	}
	return out
}

func feedAll(tr *Translator, hit HitTester, evs ...event.Contact) []string {
	var out []string
	for _, ev := range evs {
		out = append(out, kinds(tr.Feed(ev, hit))...)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTranslator(t *testing.T) {
	l := testLayout(t)
	tests := []struct {
		name string
		evs  []event.Contact
		want []string
	}{
		{
			name: "tap",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 50, 30, 0),
				contactAt(0, event.ContactMove, 52, 31, 20),
				contactAt(0, event.ContactUp, 52, 31, 80),
			},
			want: []string{"f1:down", "f1:tap"},
		},
		{
			name: "slide off cancels",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 50, 30, 0),
				contactAt(0, event.ContactMove, 108, 30, 20),
				contactAt(0, event.ContactMove, 400, 30, 40),
				contactAt(0, event.ContactUp, 400, 30, 60),
			},
			want: []string{"f1:down", "f1:cancelled"},
		},
		{
			name: "slide into another button does not press it",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 50, 30, 0),
				contactAt(0, event.ContactMove, 150, 30, 20),
				contactAt(0, event.ContactMove, 50, 30, 40),
				contactAt(0, event.ContactUp, 50, 30, 60),
			},
			want: []string{"f1:down", "f1:cancelled"},
		},
		{
			name: "within slide tolerance",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 95, 30, 0),
				contactAt(0, event.ContactMove, 105, 30, 20),
				contactAt(0, event.ContactUp, 105, 30, 40),
			},
			want: []string{"f1:down", "f1:tap"},
		},
		{
			name: "outside any button",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 108, 30, 0),
				contactAt(0, event.ContactMove, 50, 30, 20),
				contactAt(0, event.ContactUp, 50, 30, 40),
			},
			want: nil,
		},
		{
			name: "two fingers",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 50, 30, 0),
				contactAt(1, event.ContactDown, 250, 30, 10),
				contactAt(0, event.ContactUp, 50, 30, 40),
				contactAt(1, event.ContactUp, 250, 30, 50),
			},
			want: []string{"f1:down", "f5:down", "f1:tap", "f5:tap"},
		},
		{
			name: "reused id without up",
			evs: []event.Contact{
				contactAt(0, event.ContactDown, 50, 30, 0),
				contactAt(0, event.ContactDown, 150, 30, 500),
				contactAt(0, event.ContactUp, 150, 30, 600),
			},
			want: []string{"f1:down", "f1:cancelled", "f2:down", "f2:tap"},
		},
		{
			name: "move and up for unknown contact",
			evs: []event.Contact{
				contactAt(3, event.ContactMove, 50, 30, 0),
				contactAt(3, event.ContactUp, 50, 30, 10),
			},
			want: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tr := New(10, 50*time.Millisecond)
			got := feedAll(tr, l, test.evs...)
			if !equal(got, test.want) {
				t.Errorf("events = %v, want %v", got, test.want)
			}
			if tr.Live() != 0 {
				t.Errorf("%d contacts still live", tr.Live())
			}
		})
	}
}

func TestDebounce(t *testing.T) {
	l := testLayout(t)
	tr := New(10, 80*time.Millisecond)
	got := feedAll(tr, l,
		contactAt(0, event.ContactDown, 50, 30, 0),
		contactAt(0, event.ContactUp, 50, 30, 40),
		// Sensor bounce: a second press right after the tap is dropped whole.
		contactAt(0, event.ContactDown, 50, 30, 60),
		contactAt(0, event.ContactUp, 50, 30, 70),
		// Other buttons are not affected.
		contactAt(0, event.ContactDown, 150, 30, 75),
		contactAt(0, event.ContactUp, 150, 30, 90),
		// A press after the window goes through.
		contactAt(0, event.ContactDown, 50, 30, 200),
		contactAt(0, event.ContactUp, 50, 30, 240),
	)
	want := []string{"f1:down", "f1:tap", "f2:down", "f2:tap", "f1:down", "f1:tap"}
	if !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestNilHitTesterTracksInert(t *testing.T) {
	l := testLayout(t)
	tr := New(10, 0)
	if got := kinds(tr.Feed(contactAt(0, event.ContactDown, 50, 30, 0), nil)); len(got) != 0 {
		t.Fatalf("inert down produced %v", got)
	}
	if tr.Live() != 1 {
		t.Fatalf("inert contact not tracked")
	}
	// Motion over a button with the panel awake still does nothing.
	got := feedAll(tr, l,
		contactAt(0, event.ContactMove, 60, 30, 10),
		contactAt(0, event.ContactUp, 60, 30, 20),
	)
	if len(got) != 0 {
		t.Errorf("inert contact produced %v", got)
	}
}

func TestCancelAllAndPressed(t *testing.T) {
	l := testLayout(t)
	tr := New(10, 0)
	feedAll(tr, l,
		contactAt(0, event.ContactDown, 50, 30, 0),
		contactAt(1, event.ContactDown, 250, 30, 0),
		contactAt(2, event.ContactDown, 108, 30, 0),
	)
	p := tr.Pressed()
	if len(p) != 2 || !p["f1"] || !p["f5"] {
		t.Fatalf("Pressed() = %v, want f1 and f5", p)
	}
	got := kinds(tr.CancelAll())
	want := []string{"f1:cancelled", "f5:cancelled"}
	if !equal(got, want) {
		t.Errorf("CancelAll() = %v, want %v", got, want)
	}
	if tr.Live() != 0 {
		t.Errorf("%d contacts live after CancelAll", tr.Live())
	}
}

// The button a contact started on is kept even after a layout switch.
func TestStartedOnButtonSurvivesLayoutSwitch(t *testing.T) {
	fn := testLayout(t)
	media, err := layout.New("media", color.Black, []layout.Button{
		{ID: "play", Region: image.Rect(0, 6, 300, 54), Kind: layout.KindText, Label: "Play", Enabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := layout.NewModel([]*layout.Layout{fn, media}, "fn")
	if err != nil {
		t.Fatal(err)
	}
	tr := New(10, 0)
	got := kinds(tr.Feed(contactAt(0, event.ContactDown, 50, 30, 0), m))
	if err := m.SwitchTo("media"); err != nil {
		t.Fatal(err)
	}
	got = append(got, kinds(tr.Feed(contactAt(0, event.ContactUp, 50, 30, 30), m))...)
	want := []string{"f1:down", "f1:tap"}
	if !equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}
