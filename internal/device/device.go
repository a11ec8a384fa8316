// Package device talks to the Linux hardware behind the panel: the touch
// digitizer and keyboards (evdev), the virtual keyboard (uinput), the DRM
// display, its backlight and the battery.
package device

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"syscall"
)

var (
	// ErrUnavailable means a device is missing, not accessible or was
	// unplugged. It is not worth retrying.
	ErrUnavailable = errors.New("device unavailable")

	// ErrTransient means a single read or write failed.
	ErrTransient = errors.New("transient device error")
)

// classify wraps err with ErrUnavailable or ErrTransient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTransient) {
		return err
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrClosed),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.ENXIO):
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
