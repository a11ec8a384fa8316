package device

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	evdev "github.com/holoplot/go-evdev"
	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/event"
)

// TouchReader reads the panel digitizer.
type TouchReader struct {
	dev  *evdev.InputDevice
	path string
	dec  *mtDecoder
}

// OpenTouch opens the digitizer at path and maps its axes onto panel.
func OpenTouch(path string, panel image.Rectangle) (*TouchReader, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, classify("open "+path, err)
	}
	infos, err := dev.AbsInfos()
	if err != nil {
		dev.Close()
		return nil, classify("query axes of "+path, err)
	}
	x := axisOf(infos, evdev.ABS_MT_POSITION_X, evdev.ABS_X, panel.Dx())
	y := axisOf(infos, evdev.ABS_MT_POSITION_Y, evdev.ABS_Y, panel.Dy())

	name, _ := dev.Name()
	log.WithField("device", path).Infof("Touch input: %s (x %d..%d, y %d..%d)", name, x.min, x.max, y.min, y.max)
	return &TouchReader{
		dev:  dev,
		path: path,
		dec:  newMTDecoder(panel, x, y),
	}, nil
}

func axisOf(infos map[evdev.EvCode]evdev.AbsInfo, mt, st evdev.EvCode, fallback int) axis {
	for _, code := range []evdev.EvCode{mt, st} {
		if info, ok := infos[code]; ok && info.Maximum > info.Minimum {
			return axis{min: info.Minimum, max: info.Maximum}
		}
	}
	return axis{min: 0, max: int32(max(fallback-1, 1))}
}

// Run forwards contacts until the device fails or ctx is done. A read error
// is sent on errs unless ctx was cancelled.
func (r *TouchReader) Run(ctx context.Context, out chan<- event.Contact, errs chan<- error) {
	for {
		ev, err := r.dev.ReadOne()
		if err != nil {
			report(ctx, errs, classify("read "+r.path, err))
			return
		}
		for _, c := range r.dec.feed(ev) {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close closes the device, unblocking Run.
func (r *TouchReader) Close() error {
	return r.dev.Close()
}

// KeyboardReader reads key events from every physical keyboard.
type KeyboardReader struct {
	devs []*evdev.InputDevice
}

// OpenKeyboards opens the given keyboard nodes. Nodes that cannot be opened
// are skipped; it is an error only if none can.
func OpenKeyboards(paths []string) (*KeyboardReader, error) {
	r := &KeyboardReader{}
	var lastErr error
	for _, p := range paths {
		dev, err := evdev.Open(p)
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("device", p).Warn("Skipping keyboard")
			continue
		}
		r.devs = append(r.devs, dev)
	}
	if len(r.devs) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no keyboards")
		}
		return nil, fmt.Errorf("open keyboards: %w: %w", ErrUnavailable, lastErr)
	}
	return r, nil
}

// Run forwards key events from all keyboards until ctx is done. Losing one
// keyboard is logged; losing all of them is reported on errs.
func (r *KeyboardReader) Run(ctx context.Context, out chan<- event.Key, errs chan<- error) {
	done := make(chan error, len(r.devs))
	for _, dev := range r.devs {
		go func(dev *evdev.InputDevice) {
			done <- readKeys(ctx, dev, out)
		}(dev)
	}
	var err error
	for range r.devs {
		err = <-done
		if ctx.Err() == nil {
			log.WithError(err).Warn("Keyboard went away")
		}
	}
	report(ctx, errs, err)
}

func readKeys(ctx context.Context, dev *evdev.InputDevice, out chan<- event.Key) error {
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			return classify("read "+dev.Path(), err)
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		k := event.Key{
			Code:  uint16(ev.Code),
			Value: ev.Value,
			Time:  time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
		}
		select {
		case out <- k:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes every keyboard.
func (r *KeyboardReader) Close() error {
	var first error
	for _, dev := range r.devs {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func report(ctx context.Context, errs chan<- error, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	select {
	case errs <- err:
	case <-ctx.Done():
	}
}

// isTouchBar reports whether an input device name belongs to the panel
// digitizer.
func isTouchBar(name string) bool {
	return strings.Contains(name, " Touch Bar")
}
