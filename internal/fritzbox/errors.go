package fritzbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for router operations. Check with errors.Is.
var (
	// ErrAuthFailed is returned when the router rejects the credentials.
	ErrAuthFailed = errors.New("fritzbox: authentication failed")

	// ErrUnknownHost is returned when the router has no entry for a MAC.
	ErrUnknownHost = errors.New("fritzbox: unknown host")

	// ErrSOAPFault is wrapped by every FaultError.
	ErrSOAPFault = errors.New("fritzbox: soap fault")

	// ErrRequestFailed is returned for transport errors and unexpected HTTP statuses.
	ErrRequestFailed = errors.New("fritzbox: request failed")

	// ErrInvalidResponse is returned when a response cannot be decoded.
	ErrInvalidResponse = errors.New("fritzbox: invalid response")

	// ErrInvalidMAC is returned for malformed hardware addresses.
	ErrInvalidMAC = errors.New("fritzbox: invalid MAC address")
)

// UPnP error codes used by the Hosts service.
const (
	faultActionNotAuthorized = 606
	faultNoSuchEntry         = 714
)

// FaultError is a UPnP error reported inside a SOAP fault.
type FaultError struct {
	Action      string
	Code        int
	Description string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("fritzbox: %s: upnp error %d (%s)", e.Action, e.Code, e.Description)
}

// Unwrap maps the fault onto the package sentinels.
func (e *FaultError) Unwrap() []error {
	switch e.Code {
	case faultNoSuchEntry:
		return []error{ErrSOAPFault, ErrUnknownHost}
	case faultActionNotAuthorized:
		return []error{ErrSOAPFault, ErrAuthFailed}
	default:
		return []error{ErrSOAPFault}
	}
}
