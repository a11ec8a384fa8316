package device

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"
	log "github.com/sirupsen/logrus"
)

// Battery samples a power_supply device, at most once per interval.
type Battery struct {
	dir      string
	interval time.Duration
	now      func() time.Time

	at       time.Time
	percent  int
	charging bool
	ok       bool
}

// FindBattery returns the first battery udev knows about. The returned
// Battery reports no level if there is none.
func FindBattery() *Battery {
	u := udev.Udev{}
	supplies, err := enumerate(&u, "power_supply")
	if err != nil {
		log.WithError(err).Debug("No power supplies")
	}
	dir := ""
	for _, d := range supplies {
		if d.SysattrValue("type") == "Battery" {
			dir = d.Syspath()
			break
		}
	}
	return NewBattery(dir)
}

// NewBattery reads the power_supply sysfs directory dir.
func NewBattery(dir string) *Battery {
	return &Battery{dir: dir, interval: 5 * time.Second, now: time.Now}
}

// Level returns the charge in percent and whether the battery is charging.
// ok is false if the level cannot be read.
func (b *Battery) Level() (percent int, charging bool, ok bool) {
	if b.dir == "" {
		return 0, false, false
	}
	now := b.now()
	if !b.at.IsZero() && now.Sub(b.at) < b.interval {
		return b.percent, b.charging, b.ok
	}
	b.at = now
	b.ok = false

	raw, err := os.ReadFile(filepath.Join(b.dir, "capacity"))
	if err != nil {
		return 0, false, false
	}
	pct, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false, false
	}
	status, _ := os.ReadFile(filepath.Join(b.dir, "status"))
	s := strings.TrimSpace(string(status))

	b.percent = min(max(pct, 0), 100)
	b.charging = s == "Charging" || s == "Full"
	b.ok = true
	return b.percent, b.charging, b.ok
}
