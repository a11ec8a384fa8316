package device

import (
	"fmt"
	"path/filepath"
	"strings"

	evdev "github.com/holoplot/go-evdev"
	"github.com/jochenvg/go-udev"
	log "github.com/sirupsen/logrus"
)

// Hints name devices explicitly, bypassing discovery for that device.
type Hints struct {
	Touch     string
	Display   string
	Backlight string
}

// Found lists the devices to use.
type Found struct {
	Touch     string
	Keyboards []string
	Display   string

	// Backlight is empty when the panel has no controllable backlight.
	Backlight string
}

// drmDrivers are display drivers known to drive a function row panel.
var drmDrivers = []string{"appletbdrm", "adp"}

// Discover locates the panel devices through udev.
func Discover(h Hints) (Found, error) {
	u := udev.Udev{}
	f := Found{Touch: h.Touch, Display: h.Display, Backlight: h.Backlight}

	inputs, err := enumerate(&u, "input")
	if err != nil {
		return f, err
	}
	for _, d := range inputs {
		node := d.Devnode()
		if !strings.HasPrefix(filepath.Base(node), "event") {
			continue
		}
		name := inputName(d)
		switch {
		case isTouchBar(name):
			if f.Touch == "" {
				f.Touch = node
			}
		case name == VirtualKeyboardName:
		case d.PropertyValue("ID_INPUT_KEYBOARD") == "1":
			f.Keyboards = append(f.Keyboards, node)
		}
	}
	if f.Touch == "" {
		f.Touch = touchFromEvdev()
	}
	if f.Touch == "" {
		return f, fmt.Errorf("find touch input: %w", ErrUnavailable)
	}

	if f.Display == "" {
		cards, err := enumerate(&u, "drm")
		if err != nil {
			return f, err
		}
		f.Display = pickCard(cards)
	}
	if f.Display == "" {
		return f, fmt.Errorf("find display: %w", ErrUnavailable)
	}

	if f.Backlight == "" {
		lights, err := enumerate(&u, "backlight")
		if err != nil {
			return f, err
		}
		for _, d := range lights {
			name := d.Sysname()
			if strings.Contains(name, "appletb") || strings.Contains(name, "display-pipe") {
				f.Backlight = d.Syspath()
				break
			}
		}
	}

	log.WithFields(log.Fields{
		"touch":     f.Touch,
		"display":   f.Display,
		"backlight": f.Backlight,
		"keyboards": len(f.Keyboards),
	}).Info("Discovered devices")
	return f, nil
}

func enumerate(u *udev.Udev, subsystem string) ([]*udev.Device, error) {
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem(subsystem); err != nil {
		return nil, fmt.Errorf("udev match %s: %w", subsystem, err)
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return nil, fmt.Errorf("udev match %s: %w", subsystem, err)
	}
	devs, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate %s: %w", subsystem, err)
	}
	return devs, nil
}

// inputName returns the kernel name of an input event node, which udev
// keeps on the parent input device.
func inputName(d *udev.Device) string {
	p := d.Parent()
	if p == nil {
		return ""
	}
	return strings.Trim(p.PropertyValue("NAME"), `"`)
}

// touchFromEvdev scans the evdev nodes directly, for systems where udev has
// no record of the digitizer.
func touchFromEvdev() string {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		log.WithError(err).Debug("Listing input devices failed")
		return ""
	}
	for _, p := range paths {
		if isTouchBar(p.Name) {
			return p.Path
		}
	}
	return ""
}

func pickCard(cards []*udev.Device) string {
	var first string
	for _, d := range cards {
		node := d.Devnode()
		if !strings.HasPrefix(d.Sysname(), "card") || node == "" {
			continue
		}
		if first == "" {
			first = node
		}
		driver := ""
		if p := d.Parent(); p != nil {
			driver = p.Driver()
		}
		for _, known := range drmDrivers {
			if driver == known {
				return node
			}
		}
	}
	return first
}
