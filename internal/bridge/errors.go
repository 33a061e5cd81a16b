package bridge

import "errors"

var (
	// ErrUnknownUnit is returned for commands addressed to a unit that has
	// no switch.
	ErrUnknownUnit = errors.New("bridge: unknown unit")

	// ErrUnknownLevel is returned for admin selector levels without an action.
	ErrUnknownLevel = errors.New("bridge: unknown admin level")

	// ErrNotStarted is returned when the bridge is used before Start.
	ErrNotStarted = errors.New("bridge: not started")
)
