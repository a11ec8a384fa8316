package device

import (
	"github.com/bendahl/uinput"
	log "github.com/sirupsen/logrus"
)

// VirtualKeyboardName is the name the virtual keyboard registers with, so
// that discovery can skip it when looking for physical keyboards.
const VirtualKeyboardName = "fnrow virtual keyboard"

// VirtualKeyboard injects key events through uinput.
type VirtualKeyboard struct {
	kb uinput.Keyboard
}

// NewVirtualKeyboard creates the uinput keyboard at path (usually
// /dev/uinput).
func NewVirtualKeyboard(path string) (*VirtualKeyboard, error) {
	kb, err := uinput.CreateKeyboard(path, []byte(VirtualKeyboardName))
	if err != nil {
		return nil, classify("create virtual keyboard", err)
	}
	return &VirtualKeyboard{kb: kb}, nil
}

func (v *VirtualKeyboard) KeyDown(code int) error {
	log.Debugf("Keyboard: pressing %v", code)
	return classify("press key", v.kb.KeyDown(code))
}

func (v *VirtualKeyboard) KeyUp(code int) error {
	log.Debugf("Keyboard: releasing %v", code)
	return classify("release key", v.kb.KeyUp(code))
}

func (v *VirtualKeyboard) Close() error {
	return v.kb.Close()
}
