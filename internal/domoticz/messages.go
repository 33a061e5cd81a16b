package domoticz

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// InMessage is published to domoticz/in to set a device's values.
type InMessage struct {
	Idx    int    `json:"idx"`
	NValue int    `json:"nvalue"`
	SValue string `json:"svalue"`
}

// OutMessage is what Domoticz publishes on domoticz/out after a device
// changed. Only the fields this service reads are mapped.
type OutMessage struct {
	Idx        int    `mapstructure:"idx"`
	Name       string `mapstructure:"name"`
	HardwareID int    `mapstructure:"hwid"`
	Unit       int    `mapstructure:"unit"`
	NValue     int    `mapstructure:"nvalue"`
	SValue1    string `mapstructure:"svalue1"`
	DeviceType string `mapstructure:"dtype"`
	SubType    string `mapstructure:"stype"`
	SwitchType string `mapstructure:"switchType"`
}

// Level returns the selector level carried in svalue1, or 0.
func (m OutMessage) Level() int {
	n, err := strconv.Atoi(strings.TrimSpace(m.SValue1))
	if err != nil {
		return 0
	}
	return n
}

// IsSelector reports whether the message comes from a selector switch.
func (m OutMessage) IsSelector() bool {
	return m.SwitchType == "Selector" || m.SubType == "Selector Switch"
}

// Command maps the message onto the command names Domoticz uses for
// switch actions: "Set Level" for selectors, "On"/"Off" otherwise.
func (m OutMessage) Command() string {
	switch {
	case m.IsSelector():
		return "Set Level"
	case m.NValue > 0:
		return "On"
	default:
		return "Off"
	}
}

// DecodeOutMessage parses a domoticz/out payload. Numbers encoded as
// strings (and the reverse) are accepted.
func DecodeOutMessage(payload []byte) (OutMessage, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return OutMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var msg OutMessage
	if err := weakDecode(raw, &msg); err != nil {
		return OutMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Idx <= 0 {
		return OutMessage{}, fmt.Errorf("%w: missing idx", ErrInvalidMessage)
	}
	return msg, nil
}

func weakDecode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func encodeOptions(raw string) string {
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
