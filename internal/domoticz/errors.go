package domoticz

import "errors"

// Sentinel errors for the Domoticz client. Check with errors.Is.
var (
	// ErrRequestFailed is returned when the HTTP request itself fails
	// (connection refused, timeout, non-200 status).
	ErrRequestFailed = errors.New("domoticz: request failed")

	// ErrAPIError is returned when Domoticz answers with status "ERR".
	ErrAPIError = errors.New("domoticz: api error")

	// ErrUnauthorized is returned for HTTP 401 responses.
	ErrUnauthorized = errors.New("domoticz: unauthorized")

	// ErrDeviceNotFound is returned when a device idx does not exist.
	ErrDeviceNotFound = errors.New("domoticz: device not found")

	// ErrInvalidResponse is returned when a response cannot be decoded.
	ErrInvalidResponse = errors.New("domoticz: invalid response")

	// ErrInvalidMessage is returned when an MQTT payload cannot be decoded.
	ErrInvalidMessage = errors.New("domoticz: invalid mqtt message")
)
