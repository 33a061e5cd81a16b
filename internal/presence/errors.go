package presence

import "errors"

// Sentinel errors for presence tracking. Check with errors.Is.
var (
	// ErrUnknownDevice is returned for MACs that were never registered
	// with AddDevice.
	ErrUnknownDevice = errors.New("presence: unknown device")

	// ErrUnknownFilter is returned when a named host filter does not exist.
	ErrUnknownFilter = errors.New("presence: unknown filter")

	// ErrInvalidFilter is returned when a filter expression fails to compile.
	ErrInvalidFilter = errors.New("presence: invalid filter expression")

	// ErrStopped is returned after Stop has been called.
	ErrStopped = errors.New("presence: tracker stopped")

	// ErrWakeFailed is returned when no wake-on-LAN path succeeded.
	ErrWakeFailed = errors.New("presence: wake-on-lan failed")
)
