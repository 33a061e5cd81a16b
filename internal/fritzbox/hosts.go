package fritzbox

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Interface types reported by the router.
const (
	InterfaceWiFi     = "802.11"
	InterfaceEthernet = "Ethernet"
)

// Host is one entry of the router's LAN host table.
type Host struct {
	MAC                string `json:"mac"`
	IP                 string `json:"ip"`
	HostName           string `json:"host_name"`
	InterfaceType      string `json:"interface_type"`
	AddressSource      string `json:"address_source"`
	Active             bool   `json:"active"`
	LeaseTimeRemaining int    `json:"lease_time_remaining"`
	Speed              int    `json:"speed"`
}

// IsWiFi reports whether the host is attached over WLAN.
func (h Host) IsWiFi() bool {
	return h.InterfaceType == InterfaceWiFi
}

// IsEthernet reports whether the host is attached by cable.
func (h Host) IsEthernet() bool {
	return strings.EqualFold(h.InterfaceType, InterfaceEthernet)
}

// NormalizeMAC returns mac in upper-case colon notation.
// Both "aa-bb-cc-dd-ee-ff" and "AA:BB:CC:DD:EE:FF" are accepted.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil || len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return strings.ToUpper(hw.String()), nil
}

// HostList returns every host the router knows about.
//
// It prefers the AVM extension that serves the whole table as one XML
// document and falls back to walking GetGenericHostEntry when the firmware
// lacks it.
func (c *Client) HostList(ctx context.Context) ([]Host, error) {
	var res hostListPathResult
	err := c.Call(ctx, HostsService, "X_AVM-DE_GetHostListPath", nil, &res)
	if err == nil {
		if res.Path == "" {
			return nil, fmt.Errorf("%w: empty host list path", ErrInvalidResponse)
		}
		return c.fetchHostList(ctx, res.Path)
	}

	var fault *FaultError
	if !errors.As(err, &fault) {
		return nil, err
	}
	c.logger.Debug("host list path unavailable, walking entries", "code", fault.Code)
	return c.walkHosts(ctx)
}

type hostListDoc struct {
	Items []struct {
		MACAddress         string `xml:"MACAddress"`
		IPAddress          string `xml:"IPAddress"`
		HostName           string `xml:"HostName"`
		InterfaceType      string `xml:"InterfaceType"`
		AddressSource      string `xml:"AddressSource"`
		Active             string `xml:"Active"`
		LeaseTimeRemaining string `xml:"LeaseTimeRemaining"`
		Speed              string `xml:"X_AVM-DE_Speed"`
	} `xml:"Item"`
}

func (c *Client) fetchHostList(ctx context.Context, path string) ([]Host, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var doc hostListDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: host list: %w", ErrInvalidResponse, err)
	}

	hosts := make([]Host, 0, len(doc.Items))
	for _, it := range doc.Items {
		hosts = append(hosts, Host{
			MAC:                normalizeOrRaw(it.MACAddress),
			IP:                 it.IPAddress,
			HostName:           it.HostName,
			InterfaceType:      it.InterfaceType,
			AddressSource:      it.AddressSource,
			Active:             it.Active == "1",
			LeaseTimeRemaining: atoi(it.LeaseTimeRemaining),
			Speed:              atoi(it.Speed),
		})
	}
	return hosts, nil
}

func (c *Client) walkHosts(ctx context.Context) ([]Host, error) {
	var count hostCountResult
	if err := c.Call(ctx, HostsService, "GetHostNumberOfEntries", nil, &count); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(count.Count))
	if err != nil {
		return nil, fmt.Errorf("%w: host count %q", ErrInvalidResponse, count.Count)
	}

	hosts := make([]Host, 0, n)
	for i := 0; i < n; i++ {
		var entry hostEntryResult
		if err := c.Call(ctx, HostsService, "GetGenericHostEntry", indexArg{Index: strconv.Itoa(i)}, &entry); err != nil {
			return nil, fmt.Errorf("reading host entry %d: %w", i, err)
		}
		hosts = append(hosts, entry.host())
	}
	return hosts, nil
}

// SpecificHost looks up a single host by MAC address.
//
// Returns:
//   - Host: The router's entry for mac
//   - error: ErrUnknownHost when the router has no such entry
func (c *Client) SpecificHost(ctx context.Context, mac string) (Host, error) {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return Host{}, err
	}

	var entry hostEntryResult
	if err := c.Call(ctx, HostsService, "GetSpecificHostEntry", macArg{MAC: norm}, &entry); err != nil {
		return Host{}, err
	}
	h := entry.host()
	h.MAC = norm
	return h, nil
}

// WakeOnLAN asks the router to send a magic packet to mac.
func (c *Client) WakeOnLAN(ctx context.Context, mac string) error {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}
	return c.Call(ctx, HostsService, "X_AVM-DE_WakeOnLANByMACAddress", macArg{MAC: norm}, nil)
}

func normalizeOrRaw(mac string) string {
	if mac == "" {
		return ""
	}
	if norm, err := NormalizeMAC(mac); err == nil {
		return norm
	}
	return mac
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
