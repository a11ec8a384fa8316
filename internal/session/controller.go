// Package session runs the daemon's main loop. A single Controller owns the
// layout model, the input translator, the key synthesizer and the compositor,
// and is the only goroutine that touches any of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"
	log "github.com/sirupsen/logrus"

	"github.com/phinze/fnrow/internal/config"
	"github.com/phinze/fnrow/internal/device"
	"github.com/phinze/fnrow/internal/event"
	"github.com/phinze/fnrow/internal/keys"
	"github.com/phinze/fnrow/internal/layout"
	"github.com/phinze/fnrow/internal/media"
	"github.com/phinze/fnrow/internal/render"
	"github.com/phinze/fnrow/internal/touch"
)

// repeatTick is how often held keys are checked for repeats.
const repeatTick = 25 * time.Millisecond

// Power is the panel power state.
type Power uint8

const (
	// Active is full brightness.
	Active Power = iota
	// Dimmed keeps the backlight but scales frames down to DimBrightness.
	Dimmed
	// Off turns the backlight off and shows a black frame.
	Off
)

func (p Power) String() string {
	switch p {
	case Active:
		return "active"
	case Dimmed:
		return "dimmed"
	case Off:
		return "off"
	}
	return fmt.Sprintf("Power(%d)", p)
}

// Options carry the optional collaborators of a Controller.
type Options struct {
	// Load reads a fresh configuration on reload. Without it reloads are
	// ignored.
	Load func() (*config.Config, error)

	Battery render.Battery

	// Icons overrides the icon search path derived from the configuration.
	Icons render.IconProvider

	// Now is the clock; time.Now by default.
	Now func() time.Time
}

// Sources are the channels the controller reads from. Nil channels are
// never selected.
type Sources struct {
	Contacts <-chan event.Contact
	Keys     <-chan event.Key
	Reload   <-chan struct{}
	Media    <-chan media.Status
	Errors   <-chan error
}

// Controller ties input, layout state and output together.
type Controller struct {
	cfg     *config.Config
	display render.Display
	opts    Options

	model *layout.Model
	touch *touch.Translator
	synth *keys.Synthesizer
	comp  *render.Compositor

	power     Power
	lastInput time.Time

	// base is the layout shown when Fn is not held.
	base    string
	fnHeld  bool
	fnAt    time.Time
	playing bool

	dirty bool
}

// New creates a controller for the given configuration. The display is left
// untouched until Run.
func New(cfg *config.Config, d render.Display, sink keys.Sink, opts Options) (*Controller, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	model, err := cfg.Model(d.Bounds())
	if err != nil {
		return nil, err
	}
	ropts, err := renderOptions(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Controller{
		cfg:       cfg,
		display:   d,
		opts:      opts,
		model:     model,
		touch:     touch.New(cfg.SlideTolerance, cfg.Debounce),
		synth:     keys.New(sink, cfg.RepeatDelay, cfg.RepeatInterval),
		comp:      render.NewCompositor(d, ropts),
		lastInput: opts.Now(),
		base:      model.Active().Name,
		dirty:     true,
	}, nil
}

func renderOptions(cfg *config.Config, opts Options) (render.Options, error) {
	face, err := render.LoadFace(cfg.FontPath, cfg.FontSize)
	if err != nil {
		return render.Options{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	icons := opts.Icons
	if icons == nil {
		icons = render.FileIcons{Dirs: render.DefaultIconDirs, Color: cfg.Theme.Foreground}
	}
	return render.Options{
		Theme:        cfg.Theme,
		Face:         face,
		Icons:        icons,
		Battery:      opts.Battery,
		ShowOutlines: cfg.ShowButtonOutlines,
		IconSize:     cfg.IconSize,
	}, nil
}

// Power returns the current power state.
func (c *Controller) Power() Power { return c.power }

// Active returns the name of the layout on screen.
func (c *Controller) Active() string { return c.model.Active().Name }

// Run processes events until ctx is done or a device becomes unavailable.
// It returns nil on cancellation and an error wrapping
// device.ErrUnavailable on device loss.
func (c *Controller) Run(ctx context.Context, src Sources) error {
	if err := c.display.SetBrightness(c.cfg.ActiveBrightness); err != nil {
		if errors.Is(err, device.ErrUnavailable) {
			return err
		}
		log.WithError(err).Warn("Failed to set backlight")
	}

	interval := c.cfg.TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var repeat *time.Ticker
	defer func() {
		if repeat != nil {
			repeat.Stop()
		}
	}()

	for {
		if err := c.flush(); err != nil {
			return err
		}
		if c.cfg.TickInterval != interval {
			interval = c.cfg.TickInterval
			ticker.Reset(interval)
		}

		// The fast ticker only runs while a key is held.
		var repeatC <-chan time.Time
		switch {
		case c.synth.Held() && repeat == nil:
			repeat = time.NewTicker(repeatTick)
		case !c.synth.Held() && repeat != nil:
			repeat.Stop()
			repeat = nil
		}
		if repeat != nil {
			repeatC = repeat.C
		}

		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-src.Contacts:
			if !ok {
				return fmt.Errorf("touch input closed: %w", device.ErrUnavailable)
			}
			c.handleContact(ev)
		case k, ok := <-src.Keys:
			if !ok {
				src.Keys = nil
				continue
			}
			c.handleKey(k)
		case _, ok := <-src.Reload:
			if !ok {
				src.Reload = nil
				continue
			}
			c.reload()
		case s, ok := <-src.Media:
			if !ok {
				src.Media = nil
				continue
			}
			c.handleMedia(s)
		case err, ok := <-src.Errors:
			if !ok {
				src.Errors = nil
				continue
			}
			if errors.Is(err, device.ErrUnavailable) {
				return err
			}
			log.WithError(err).Warn("Device error")
		case <-ticker.C:
			c.tick(c.opts.Now())
		case <-repeatC:
			c.synth.Tick(c.opts.Now())
		}
	}
}

// Close releases every key and blanks the panel. Devices are closed by the
// caller afterwards.
func (c *Controller) Close() error {
	c.activate(c.touch.CancelAll(), c.opts.Now())
	c.synth.ReleaseAll()

	var errs []error
	if err := c.comp.Blank(); err != nil {
		errs = append(errs, err)
	}
	if err := c.display.SetBrightness(0); err != nil {
		errs = append(errs, fmt.Errorf("failed to turn off backlight: %w", err))
	}
	c.power = Off
	return errors.Join(errs...)
}

func (c *Controller) handleContact(ev event.Contact) {
	woke := c.input()
	var hit touch.HitTester = c.model
	if woke {
		// Nothing was visible under the finger.
		hit = nil
	}
	c.activate(c.touch.Feed(ev, hit), c.opts.Now())
}

func (c *Controller) handleKey(k event.Key) {
	c.input()
	if k.Code != uint16(evdev.KEY_FN) {
		return
	}
	now := c.opts.Now()
	switch {
	case k.Pressed():
		if c.fnHeld {
			return
		}
		c.fnHeld = true
		c.fnAt = now
		if c.cfg.FnLayout != "" {
			c.switchTo(c.cfg.FnLayout)
		}
	case k.Released():
		if !c.fnHeld {
			return
		}
		c.fnHeld = false
		if now.Sub(c.fnAt) < c.cfg.FnTapThreshold {
			c.base = c.nextBase()
			log.Debugf("Fn tap, cycling to %s", c.base)
		}
		c.switchTo(c.base)
	}
}

func (c *Controller) handleMedia(s media.Status) {
	if c.cfg.MediaLayout == "" || s.Playing == c.playing {
		return
	}
	c.playing = s.Playing
	if s.Playing {
		c.base = c.cfg.MediaLayout
	} else {
		c.base = c.cfg.DefaultLayout
	}
	log.WithField("playing", s.Playing).Debugf("Media changed, base layout %s", c.base)
	if !c.fnHeld {
		c.switchTo(c.base)
	}
}

func (c *Controller) nextBase() string {
	bases := c.cfg.BaseLayouts()
	if len(bases) == 0 {
		return c.base
	}
	for i, name := range bases {
		if name == c.base {
			return bases[(i+1)%len(bases)]
		}
	}
	return bases[0]
}

func (c *Controller) switchTo(name string) {
	if name == c.model.Active().Name {
		return
	}
	if err := c.model.SwitchTo(name); err != nil {
		log.WithError(err).Warn("Keeping current layout")
		return
	}
	log.Debugf("Switched to layout %s", name)
	c.dirty = true
}

func (c *Controller) activate(acts []touch.Activation, now time.Time) {
	for _, a := range acts {
		log.Debugf("Button %s %s", a.Event.ButtonID, a.Event.Kind)
		c.synth.Activate(a.Button.ID, a.Button.Action, a.Event.Kind, now)
		c.dirty = true
	}
}

// input records user activity and wakes the panel. It reports whether the
// panel was off.
func (c *Controller) input() bool {
	c.lastInput = c.opts.Now()
	if c.power == Active {
		return false
	}
	woke := c.power == Off
	c.setPower(Active)
	return woke
}

// tick runs the idle timers and periodic redraws. A zero timeout disables
// that stage.
func (c *Controller) tick(now time.Time) {
	if c.synth.Held() || len(c.touch.Pressed()) > 0 {
		// A finger resting on a button sends no events.
		c.lastInput = now
	}
	idle := now.Sub(c.lastInput)
	switch {
	case c.cfg.OffTimeout > 0 && c.power != Off && idle >= c.cfg.OffTimeout:
		c.setPower(Off)
	case c.cfg.DimTimeout > 0 && c.power == Active && idle >= c.cfg.DimTimeout:
		c.setPower(Dimmed)
	}
	if c.power == Off {
		return
	}
	if c.model.Active().Dynamic() || c.comp.Pending() {
		c.dirty = true
	}
}

func (c *Controller) setPower(p Power) {
	if p == c.power {
		return
	}
	log.Debugf("Panel %s -> %s", c.power, p)
	prev := c.power
	c.power = p
	switch p {
	case Active:
		if prev == Off {
			c.setBacklight(c.cfg.ActiveBrightness)
			c.comp.Invalidate()
		}
		c.dirty = true
	case Dimmed:
		c.dirty = true
	case Off:
		c.setBacklight(0)
		if err := c.comp.Blank(); err != nil {
			log.WithError(err).Warn("Failed to blank panel")
		}
		c.dirty = false
	}
}

func (c *Controller) setBacklight(percent int) {
	if err := c.display.SetBrightness(percent); err != nil {
		log.WithError(err).Warn("Failed to set backlight")
	}
}

func (c *Controller) scene() render.Scene {
	brightness := render.MaxBrightness
	if c.power == Dimmed {
		brightness = c.cfg.DimBrightness
	}
	return render.Scene{
		Layout:     c.model.Active(),
		Pressed:    c.touch.Pressed(),
		Brightness: brightness,
		Now:        c.opts.Now(),
	}
}

// flush renders and presents at most one frame for everything that changed
// since the last call.
func (c *Controller) flush() error {
	if !c.dirty || c.power == Off {
		return nil
	}
	c.dirty = false
	f := c.comp.Render(c.scene())
	if err := c.comp.Present(f); err != nil {
		if errors.Is(err, device.ErrUnavailable) {
			return err
		}
		log.WithError(err).Warn("Skipping frame")
	}
	return nil
}

// reload swaps in a new configuration. Nothing changes unless the new
// configuration loads and builds completely.
func (c *Controller) reload() {
	if c.opts.Load == nil {
		return
	}
	cfg, err := c.opts.Load()
	if err != nil {
		log.WithError(err).Error("Failed to reload config, keeping the current one")
		return
	}
	model, err := cfg.Model(c.display.Bounds())
	if err != nil {
		log.WithError(err).Error("Failed to reload config, keeping the current one")
		return
	}
	ropts, err := renderOptions(cfg, c.opts)
	if err != nil {
		log.WithError(err).Error("Failed to reload config, keeping the current one")
		return
	}

	c.activate(c.touch.CancelAll(), c.opts.Now())
	c.synth.ReleaseAll()
	c.synth.SetRepeat(cfg.RepeatDelay, cfg.RepeatInterval)
	c.touch.SetTolerances(cfg.SlideTolerance, cfg.Debounce)

	c.cfg = cfg
	c.model = model
	c.base = model.Active().Name
	if c.playing && cfg.MediaLayout != "" {
		c.base = cfg.MediaLayout
		c.switchTo(c.base)
	}
	c.comp.SetOptions(ropts)
	if c.power != Off {
		c.setBacklight(cfg.ActiveBrightness)
	}
	c.dirty = true
	log.Info("Reloaded config")
}
