package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Backlight controls a sysfs backlight such as
// /sys/class/backlight/appletb_backlight.
type Backlight struct {
	dir  string
	max  int
	last int
}

// OpenBacklight opens the backlight class directory dir.
func OpenBacklight(dir string) (*Backlight, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, classify("open backlight", err)
	}
	maxLevel, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || maxLevel <= 0 {
		return nil, fmt.Errorf("open backlight %s: %w: bad max_brightness %q", dir, ErrUnavailable, raw)
	}
	return &Backlight{dir: dir, max: maxLevel, last: -1}, nil
}

// Set sets the backlight to percent of its maximum. Writing the level it is
// already at is skipped.
func (b *Backlight) Set(percent int) error {
	level := b.max * min(max(percent, 0), 100) / 100
	if percent > 0 && level == 0 {
		level = 1
	}
	if level == b.last {
		return nil
	}
	err := os.WriteFile(filepath.Join(b.dir, "brightness"), []byte(strconv.Itoa(level)), 0o644)
	if err != nil {
		return classify("set backlight", err)
	}
	b.last = level
	return nil
}

// Level returns the last level written, or -1.
func (b *Backlight) Level() int { return b.last }

// Max returns the raw maximum brightness.
func (b *Backlight) Max() int { return b.max }
