package device

import (
	"errors"
	"image"

	"github.com/phinze/fnrow/internal/render"
)

// Panel is the physical display: a DRM card plus an optional backlight.
type Panel struct {
	card      *Card
	backlight *Backlight
}

// NewPanel combines card and backlight. backlight may be nil, in which case
// only software dimming is available.
func NewPanel(card *Card, backlight *Backlight) *Panel {
	return &Panel{card: card, backlight: backlight}
}

func (p *Panel) Bounds() image.Rectangle { return p.card.Bounds() }

func (p *Panel) Present(f *render.Frame) error {
	return p.card.Write(f.Pix, f.Damage)
}

func (p *Panel) SetBrightness(percent int) error {
	if p.backlight == nil {
		return nil
	}
	return p.backlight.Set(percent)
}

// Close turns the backlight off and releases the card. The card is released
// even when the backlight write fails.
func (p *Panel) Close() error {
	var err error
	if p.backlight != nil {
		err = p.backlight.Set(0)
	}
	return errors.Join(err, p.card.Close())
}
