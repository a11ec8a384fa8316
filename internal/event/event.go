// Package event defines the typed events that flow between the device
// readers, the touch translator and the session controller.
package event

import (
	"fmt"
	"image"
	"time"
)

// Phase indicates what happened to a touch contact.
type Phase uint8

const (
	// ContactDown indicates a finger touched the panel.
	ContactDown Phase = iota + 1
	// ContactMove indicates a touching finger moved.
	ContactMove
	// ContactUp indicates the finger was lifted.
	ContactUp
)

func (p Phase) String() string {
	switch p {
	case ContactDown:
		return "down"
	case ContactMove:
		return "move"
	case ContactUp:
		return "up"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Contact is a positional event reported by the touch digitizer.
type Contact struct {
	// ID identifies the physical contact (the multitouch slot).
	ID int

	// Phase indicates whether the contact started, moved or ended.
	Phase Phase

	// Point is the contact position in panel pixels.
	Point image.Point

	// Time is when the report containing this event was received.
	Time time.Time
}

// Key is a key event read from one of the system keyboards.
type Key struct {
	// Code is the Linux key code.
	Code uint16

	// Value is 1 for press, 0 for release and 2 for autorepeat.
	Value int32

	// Time is when the event was received.
	Time time.Time
}

// Pressed reports whether the event is an initial key press.
func (k Key) Pressed() bool { return k.Value == 1 }

// Released reports whether the event is a key release.
func (k Key) Released() bool { return k.Value == 0 }

// ButtonKind indicates the type of logical button event.
type ButtonKind uint8

const (
	// ButtonDown is emitted as soon as a contact lands on a button.
	ButtonDown ButtonKind = iota + 1
	// ButtonTap is emitted when the contact is lifted inside the button.
	ButtonTap
	// ButtonCancelled is emitted when the contact slid off the button.
	ButtonCancelled
)

func (k ButtonKind) String() string {
	switch k {
	case ButtonDown:
		return "down"
	case ButtonTap:
		return "tap"
	case ButtonCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Up reports whether the kind ends a press.
func (k ButtonKind) Up() bool {
	return k == ButtonTap || k == ButtonCancelled
}

// Button is a logical button event produced by the touch translator.
type Button struct {
	ButtonID string
	Kind     ButtonKind
}
