package fritzbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/huin/goupnp/soap"
)

// Service identifies a TR-064 service by type and control URL.
type Service struct {
	Type       string
	ControlURL string
}

// HostsService is the LAN hosts table service.
var HostsService = Service{
	Type:       "urn:dslforum-org:service:Hosts:1",
	ControlURL: "/upnp/control/hosts",
}

// Call invokes a TR-064 action.
//
// in is a struct of string fields, each tagged `soap:"NewName"` with its
// argument name, or nil. out is a pointer to a struct with `xml:"NewName"`
// tags, or nil when the output is not needed.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - svc: Service to address
//   - action: Action name (e.g. "GetSpecificHostEntry")
//
// Returns:
//   - error: *FaultError for UPnP errors, ErrAuthFailed, ErrRequestFailed or ErrInvalidResponse
func (c *Client) Call(ctx context.Context, svc Service, action string, in, out any) error {
	u, err := c.endpoint(svc.ControlURL)
	if err != nil {
		return err
	}
	sc := soap.NewSOAPClient(*u)
	sc.HTTPClient = *c.http

	c.logger.Debug("tr-064 call", "action", action, "control_url", svc.ControlURL)

	ctx, st := withCallStatus(ctx)
	err = sc.PerformActionCtx(ctx, svc.Type, action, in, out)
	if err == nil {
		return nil
	}

	var fault *soap.SOAPFaultError
	if errors.As(err, &fault) {
		return faultError(action, fault)
	}
	switch {
	case st.code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthFailed, action)
	case st.code == 0:
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, action, err)
	case st.code != http.StatusOK:
		return fmt.Errorf("%w: %s: status %d", ErrRequestFailed, action, st.code)
	default:
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, action, err)
	}
}

func faultError(action string, f *soap.SOAPFaultError) *FaultError {
	desc := strings.TrimSpace(f.Detail.UPnPError.ErrorDescription)
	if desc == "" {
		desc = f.FaultString
	}
	return &FaultError{Action: action, Code: f.Detail.UPnPError.Errorcode, Description: desc}
}

// Action arguments and results of the Hosts service.

type macArg struct {
	MAC string `soap:"NewMACAddress"`
}

type indexArg struct {
	Index string `soap:"NewIndex"`
}

type hostListPathResult struct {
	Path string `xml:"NewX_AVM-DE_HostListPath"`
}

type hostCountResult struct {
	Count string `xml:"NewHostNumberOfEntries"`
}

type hostEntryResult struct {
	MAC                string `xml:"NewMACAddress"`
	IP                 string `xml:"NewIPAddress"`
	AddressSource      string `xml:"NewAddressSource"`
	LeaseTimeRemaining string `xml:"NewLeaseTimeRemaining"`
	InterfaceType      string `xml:"NewInterfaceType"`
	Active             string `xml:"NewActive"`
	HostName           string `xml:"NewHostName"`
}

func (r hostEntryResult) host() Host {
	return Host{
		MAC:                normalizeOrRaw(r.MAC),
		IP:                 r.IP,
		HostName:           r.HostName,
		InterfaceType:      r.InterfaceType,
		AddressSource:      r.AddressSource,
		Active:             r.Active == "1",
		LeaseTimeRemaining: atoi(r.LeaseTimeRemaining),
	}
}
