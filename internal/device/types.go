package device

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind distinguishes the admin selector from presence switches.
type Kind string

const (
	KindAdmin    Kind = "admin"
	KindPresence Kind = "presence"
)

// Unit numbers.
const (
	// AdminUnit is the unit of the admin selector switch.
	AdminUnit = 1

	// FirstDeviceUnit is the lowest unit given to a presence switch.
	FirstDeviceUnit = 2
)

// Switch values.
const (
	Absent  = 0
	Present = 1
)

// Event sources.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// maxNameLength matches the Domoticz device name column.
const maxNameLength = 100

// Device is one mirrored switch.
type Device struct {
	Unit int `json:"unit"`

	// MAC is empty for the admin selector.
	MAC string `json:"mac,omitempty"`

	// Idx is the Domoticz device index of the switch.
	Idx int `json:"idx"`

	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	NValue int    `json:"n_value"`
	SValue string `json:"s_value"`
	Used   bool   `json:"used"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPresent reports whether the switch is On.
func (d *Device) IsPresent() bool {
	return d.NValue == Present
}

// DeepCopy returns an independent copy of d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// Event is one presence transition in the history.
type Event struct {
	ID         int64     `json:"id"`
	MAC        string    `json:"mac"`
	Name       string    `json:"name"`
	Present    bool      `json:"present"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TruncateName trims name and shortens it to the longest prefix of whole
// characters that fits the Domoticz name column.
func TruncateName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) <= maxNameLength {
		return name
	}
	cut := maxNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return strings.TrimSpace(name[:cut])
}

// Validate checks a device before it is written.
func (d *Device) Validate() error {
	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	case len(name) > maxNameLength:
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidDevice, maxNameLength)
	case d.NValue != Absent && d.NValue != Present && d.Kind == KindPresence:
		return fmt.Errorf("%w: n_value %d", ErrInvalidDevice, d.NValue)
	}

	switch d.Kind {
	case KindAdmin:
		if d.Unit != AdminUnit {
			return fmt.Errorf("%w: admin selector must be unit %d", ErrInvalidDevice, AdminUnit)
		}
		if d.MAC != "" {
			return fmt.Errorf("%w: admin selector has no MAC", ErrInvalidDevice)
		}
	case KindPresence:
		if d.Unit < FirstDeviceUnit {
			return fmt.Errorf("%w: presence unit %d below %d", ErrInvalidDevice, d.Unit, FirstDeviceUnit)
		}
		if d.MAC == "" {
			return fmt.Errorf("%w: MAC is required", ErrInvalidDevice)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidDevice, d.Kind)
	}
	return nil
}
