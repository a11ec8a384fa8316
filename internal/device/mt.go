package device

import (
	"image"
	"sort"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/phinze/fnrow/internal/event"
)

// axis is the raw range of an absolute axis.
type axis struct {
	min, max int32
}

// scale maps v from the axis range onto [0, out).
func (a axis) scale(v int32, out int) int {
	if out <= 1 {
		return 0
	}
	v = min(max(v, a.min), a.max)
	den := int64(a.max - a.min)
	if den <= 0 {
		return 0
	}
	return int(int64(v-a.min) * int64(out-1) / den)
}

type slot struct {
	tracking int32
	active   bool
	p        image.Point

	reported bool
	last     image.Point
}

// mtDecoder turns a stream of evdev events into contact events. It speaks
// multitouch protocol B and falls back to single-touch ABS_X/ABS_Y/BTN_TOUCH
// for devices without slots. Events are emitted on SYN_REPORT.
type mtDecoder struct {
	panel image.Rectangle
	x, y  axis

	multi    bool
	current  int
	slots    map[int]*slot
	dropping bool
}

func newMTDecoder(panel image.Rectangle, x, y axis) *mtDecoder {
	return &mtDecoder{
		panel: panel,
		x:     x,
		y:     y,
		slots: make(map[int]*slot),
	}
}

func (d *mtDecoder) at(n int) *slot {
	s, ok := d.slots[n]
	if !ok {
		s = &slot{tracking: -1}
		d.slots[n] = s
	}
	return s
}

func (d *mtDecoder) feed(ev *evdev.InputEvent) []event.Contact {
	if d.dropping {
		if ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_REPORT {
			d.dropping = false
			return d.releaseAll(eventTime(ev))
		}
		return nil
	}

	switch ev.Type {
	case evdev.EV_ABS:
		switch ev.Code {
		case evdev.ABS_MT_SLOT:
			d.multi = true
			d.current = int(ev.Value)
		case evdev.ABS_MT_TRACKING_ID:
			d.multi = true
			s := d.at(d.current)
			if ev.Value < 0 {
				s.active = false
			} else {
				if s.active && s.tracking != ev.Value {
					// New finger in the same slot without a lift in between;
					// the translator closes the old contact on the second down.
					s.reported = false
				}
				s.active = true
			}
			s.tracking = ev.Value
		case evdev.ABS_MT_POSITION_X:
			d.multi = true
			d.at(d.current).p.X = d.panel.Min.X + d.x.scale(ev.Value, d.panel.Dx())
		case evdev.ABS_MT_POSITION_Y:
			d.multi = true
			d.at(d.current).p.Y = d.panel.Min.Y + d.y.scale(ev.Value, d.panel.Dy())
		case evdev.ABS_X:
			if !d.multi {
				d.at(0).p.X = d.panel.Min.X + d.x.scale(ev.Value, d.panel.Dx())
			}
		case evdev.ABS_Y:
			if !d.multi {
				d.at(0).p.Y = d.panel.Min.Y + d.y.scale(ev.Value, d.panel.Dy())
			}
		}
	case evdev.EV_KEY:
		if ev.Code == evdev.BTN_TOUCH && !d.multi {
			d.at(0).active = ev.Value != 0
		}
	case evdev.EV_SYN:
		switch ev.Code {
		case evdev.SYN_REPORT:
			return d.report(eventTime(ev))
		case evdev.SYN_DROPPED:
			d.dropping = true
		}
	}
	return nil
}

func (d *mtDecoder) report(t time.Time) []event.Contact {
	var out []event.Contact
	for _, n := range d.order() {
		s := d.slots[n]
		switch {
		case s.active && !s.reported:
			out = append(out, event.Contact{ID: n, Phase: event.ContactDown, Point: s.p, Time: t})
			s.reported = true
			s.last = s.p
		case s.active && s.p != s.last:
			out = append(out, event.Contact{ID: n, Phase: event.ContactMove, Point: s.p, Time: t})
			s.last = s.p
		case !s.active && s.reported:
			out = append(out, event.Contact{ID: n, Phase: event.ContactUp, Point: s.p, Time: t})
			s.reported = false
		}
	}
	return out
}

// releaseAll lifts every contact after the kernel dropped events.
func (d *mtDecoder) releaseAll(t time.Time) []event.Contact {
	var out []event.Contact
	for _, n := range d.order() {
		s := d.slots[n]
		if s.reported {
			out = append(out, event.Contact{ID: n, Phase: event.ContactUp, Point: s.last, Time: t})
		}
		s.reported = false
		s.active = false
		s.tracking = -1
	}
	return out
}

func (d *mtDecoder) order() []int {
	ids := make([]int, 0, len(d.slots))
	for n := range d.slots {
		ids = append(ids, n)
	}
	sort.Ints(ids)
	return ids
}

func eventTime(ev *evdev.InputEvent) time.Time {
	return time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000)
}
