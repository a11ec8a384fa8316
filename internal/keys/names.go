package keys

import (
	"errors"
	"fmt"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// ErrUnknownKey is returned when a key name has no Linux key code.
var ErrUnknownKey = errors.New("unknown key")

// names maps configuration key names to Linux key codes. Lookups are
// case-insensitive and also accept the kernel's KEY_ prefixed spelling.
var names = map[string]evdev.EvCode{
	"esc":            evdev.KEY_ESC,
	"f1":             evdev.KEY_F1,
	"f2":             evdev.KEY_F2,
	"f3":             evdev.KEY_F3,
	"f4":             evdev.KEY_F4,
	"f5":             evdev.KEY_F5,
	"f6":             evdev.KEY_F6,
	"f7":             evdev.KEY_F7,
	"f8":             evdev.KEY_F8,
	"f9":             evdev.KEY_F9,
	"f10":            evdev.KEY_F10,
	"f11":            evdev.KEY_F11,
	"f12":            evdev.KEY_F12,
	"f13":            evdev.KEY_F13,
	"f14":            evdev.KEY_F14,
	"f15":            evdev.KEY_F15,
	"f16":            evdev.KEY_F16,
	"f17":            evdev.KEY_F17,
	"f18":            evdev.KEY_F18,
	"f19":            evdev.KEY_F19,
	"f20":            evdev.KEY_F20,
	"f21":            evdev.KEY_F21,
	"f22":            evdev.KEY_F22,
	"f23":            evdev.KEY_F23,
	"f24":            evdev.KEY_F24,
	"mute":           evdev.KEY_MUTE,
	"micmute":        evdev.KEY_MICMUTE,
	"volumedown":     evdev.KEY_VOLUMEDOWN,
	"volumeup":       evdev.KEY_VOLUMEUP,
	"brightnessdown": evdev.KEY_BRIGHTNESSDOWN,
	"brightnessup":   evdev.KEY_BRIGHTNESSUP,
	"illumdown":      evdev.KEY_KBDILLUMDOWN,
	"illumup":        evdev.KEY_KBDILLUMUP,
	"illumtoggle":    evdev.KEY_KBDILLUMTOGGLE,
	"playpause":      evdev.KEY_PLAYPAUSE,
	"nextsong":       evdev.KEY_NEXTSONG,
	"previoussong":   evdev.KEY_PREVIOUSSONG,
	"stopcd":         evdev.KEY_STOPCD,
	"scale":          evdev.KEY_SCALE,
	"dashboard":      evdev.KEY_DASHBOARD,
	"search":         evdev.KEY_SEARCH,
	"print":          evdev.KEY_PRINT,
	"sysrq":          evdev.KEY_SYSRQ,
	"delete":         evdev.KEY_DELETE,
	"home":           evdev.KEY_HOME,
	"end":            evdev.KEY_END,
	"pageup":         evdev.KEY_PAGEUP,
	"pagedown":       evdev.KEY_PAGEDOWN,
	"leftctrl":       evdev.KEY_LEFTCTRL,
	"leftshift":      evdev.KEY_LEFTSHIFT,
	"leftalt":        evdev.KEY_LEFTALT,
	"leftmeta":       evdev.KEY_LEFTMETA,
	"rightctrl":      evdev.KEY_RIGHTCTRL,
	"rightshift":     evdev.KEY_RIGHTSHIFT,
	"rightalt":       evdev.KEY_RIGHTALT,
	"rightmeta":      evdev.KEY_RIGHTMETA,
	"tab":            evdev.KEY_TAB,
	"enter":          evdev.KEY_ENTER,
	"space":          evdev.KEY_SPACE,
	"backspace":      evdev.KEY_BACKSPACE,
	"left":           evdev.KEY_LEFT,
	"right":          evdev.KEY_RIGHT,
	"up":             evdev.KEY_UP,
	"down":           evdev.KEY_DOWN,
	"calc":           evdev.KEY_CALC,
	"mail":           evdev.KEY_MAIL,
	"www":            evdev.KEY_WWW,
	"sleep":          evdev.KEY_SLEEP,
	"power":          evdev.KEY_POWER,
}

// repeatable lists the keys that repeat while held by default.
var repeatable = map[int]bool{
	int(evdev.KEY_VOLUMEDOWN):     true,
	int(evdev.KEY_VOLUMEUP):       true,
	int(evdev.KEY_BRIGHTNESSDOWN): true,
	int(evdev.KEY_BRIGHTNESSUP):   true,
	int(evdev.KEY_KBDILLUMDOWN):   true,
	int(evdev.KEY_KBDILLUMUP):     true,
}

// Code returns the Linux key code for a configuration key name such as
// "F5", "VolumeDown" or "KEY_VOLUMEDOWN".
func Code(name string) (int, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "key_")
	n = strings.ReplaceAll(n, "_", "")
	if c, ok := names[n]; ok {
		return int(c), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// Parse builds an action from a list of key names. The action repeats while
// held if any of its keys is repeatable by default.
func Parse(names []string) (Action, error) {
	a := Action{Codes: make([]int, 0, len(names))}
	for _, n := range names {
		c, err := Code(n)
		if err != nil {
			return Action{}, err
		}
		a.Codes = append(a.Codes, c)
		if repeatable[c] {
			a.Repeat = true
		}
	}
	return a, nil
}
