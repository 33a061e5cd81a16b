package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/domoticz"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/presence"
)

// Admin selector levels.
const (
	LevelWiFi     = 10
	LevelEthernet = 20
	LevelActive   = 30
	LevelAll      = 40
	LevelRemove   = 50
)

// Event channels and MQTT event types.
const (
	EventPresenceChanged = "presence_changed"
	EventDeviceCreated   = "device_created"
	EventDeviceRemoved   = "device_removed"
)

// adminSelectorOptions are the admin switch levels; level 0 is hidden.
var adminSelectorOptions = domoticz.SelectorOptions{
	LevelNames:     []string{"", "+ WiFi", "+ ethernet", "+ all active", "+ all", "- all"},
	LevelOffHidden: true,
	SelectorStyle:  0,
}

// Event is published on MQTT and to WebSocket clients.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	MAC     string    `json:"mac"`
	Name    string    `json:"name"`
	Unit    int       `json:"unit"`
	Idx     int       `json:"idx"`
	Present bool      `json:"present"`
	Source  string    `json:"source,omitempty"`
	At      time.Time `json:"at"`
}

// ensureAdminSwitch creates the admin selector on unit 1 when missing.
// Caller holds mu.
func (b *Bridge) ensureAdminSwitch(ctx context.Context) error {
	_, err := b.registry.GetByUnit(device.AdminUnit)
	if err == nil {
		return nil
	}
	if !errors.Is(err, device.ErrDeviceNotFound) {
		return err
	}

	idx, err := b.domoticz.CreateSelector(ctx, b.adminName, adminSelectorOptions)
	if err != nil {
		return err
	}
	admin := &device.Device{
		Unit: device.AdminUnit,
		Idx:  idx,
		Name: b.adminName,
		Kind: device.KindAdmin,
		Used: true,
	}
	if err := b.registry.Create(ctx, admin); err != nil {
		b.rollbackSwitch(ctx, idx)
		return err
	}
	b.logger.Info("admin selector created", "idx", idx, "name", b.adminName)
	return nil
}

// createInitialDevices mirrors the configured MACs that have no switch yet.
// The MAC doubles as the name until the router reports one.
// Caller holds mu.
func (b *Bridge) createInitialDevices(ctx context.Context) {
	if len(b.initialMACs) == 0 {
		b.logger.Info("No MAC addresses configured")
		return
	}
	for _, mac := range b.initialMACs {
		if b.registry.HasMAC(mac) {
			continue
		}
		if _, err := b.createSwitch(ctx, mac, mac); err != nil {
			b.logger.Error("creating initial device failed", "mac", mac, "error", err)
		}
	}
}

// createSwitch adds a presence switch on the next free unit.
// Caller holds mu.
func (b *Bridge) createSwitch(ctx context.Context, mac, name string) (*device.Device, error) {
	name = device.TruncateName(name)
	unit, err := b.registry.NextUnit(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := b.domoticz.CreateSwitch(ctx, name)
	if err != nil {
		return nil, err
	}

	dev := &device.Device{
		Unit: unit,
		MAC:  mac,
		Idx:  idx,
		Name: name,
		Kind: device.KindPresence,
		Used: true,
	}
	if err := b.registry.Create(ctx, dev); err != nil {
		b.rollbackSwitch(ctx, idx)
		return nil, err
	}
	if err := b.tracker.AddDevice(mac); err != nil {
		b.logger.Warn("registering device with tracker failed", "mac", mac, "error", err)
	}

	b.logger.Info("device created", "unit", unit, "idx", idx, "mac", mac, "name", name)
	b.emit(EventDeviceCreated, *dev, "")
	return dev, nil
}

// rollbackSwitch deletes a Domoticz device whose registry row could not
// be written.
func (b *Bridge) rollbackSwitch(ctx context.Context, idx int) {
	if err := b.domoticz.DeleteDevice(ctx, idx); err != nil {
		b.logger.Warn("rolling back domoticz device failed", "idx", idx, "error", err)
	}
}

// createFromHosts mirrors router hosts that are not yet switches. Hosts
// without a MAC are skipped. Caller holds mu.
func (b *Bridge) createFromHosts(ctx context.Context, hosts []fritzbox.Host) int {
	created := 0
	for _, h := range hosts {
		if h.MAC == "" || b.registry.HasMAC(h.MAC) {
			continue
		}
		name := h.HostName
		if name == "" {
			name = h.MAC
		}
		if _, err := b.createSwitch(ctx, h.MAC, name); err != nil {
			b.logger.Error("creating device from host failed", "mac", h.MAC, "error", err)
			continue
		}
		created++
	}
	return created
}

// removeAllDevices deletes every presence switch. The admin selector stays.
// Caller holds mu.
func (b *Bridge) removeAllDevices(ctx context.Context) int {
	removed := 0
	for _, dev := range b.registry.ListPresence() {
		if err := b.domoticz.DeleteDevice(ctx, dev.Idx); err != nil {
			b.logger.Warn("deleting domoticz device failed", "idx", dev.Idx, "mac", dev.MAC, "error", err)
		}
		if err := b.registry.Delete(ctx, dev.Unit); err != nil {
			b.logger.Error("deleting device failed", "unit", dev.Unit, "error", err)
			continue
		}
		b.tracker.RemoveDevice(dev.MAC)
		b.emit(EventDeviceRemoved, dev, "")
		removed++
	}
	b.logger.Info("presence devices removed", "count", removed)
	return removed
}

// updateDevice applies a new state and name to a switch when either
// changed. Caller holds mu.
//
// Returns:
//   - bool: Whether anything changed
//   - error: When the registry write failed
func (b *Bridge) updateDevice(ctx context.Context, dev device.Device, present bool, name, source string) (bool, error) {
	name = device.TruncateName(name)
	if name == "" {
		name = dev.Name
	}
	nValue := device.Absent
	if present {
		nValue = device.Present
	}
	if dev.NValue == nValue && dev.Name == name {
		return false, nil
	}

	stateChanged := dev.NValue != nValue
	if name != dev.Name {
		if err := b.domoticz.RenameDevice(ctx, dev.Idx, name); err != nil {
			b.logger.Warn("renaming domoticz device failed", "idx", dev.Idx, "name", name, "error", err)
		}
	}
	if stateChanged {
		b.pushState(ctx, dev.Idx, nValue)
	}

	dev.NValue = nValue
	dev.SValue = ""
	dev.Name = name
	if err := b.registry.Update(ctx, &dev); err != nil {
		return false, err
	}

	b.logger.Info("device updated", "unit", dev.Unit, "mac", dev.MAC, "name", name, "present", present)
	if stateChanged {
		b.recordPresence(ctx, dev, source)
	}
	return true, nil
}

// recordPresence writes a transition to history, metrics and listeners.
func (b *Bridge) recordPresence(ctx context.Context, dev device.Device, source string) {
	at := b.now()
	err := b.registry.RecordEvent(ctx, device.Event{
		MAC:        dev.MAC,
		Name:       dev.Name,
		Present:    dev.IsPresent(),
		Source:     source,
		OccurredAt: at,
	})
	if err != nil {
		b.logger.Warn("recording presence event failed", "mac", dev.MAC, "error", err)
	}
	if b.metrics != nil {
		b.metrics.WritePresence(dev.MAC, dev.Name, dev.IsPresent(), source, at)
	}
	b.emit(EventPresenceChanged, dev, source)
}

// pushState sends a switch value to Domoticz: over MQTT when connected,
// otherwise through the JSON API.
func (b *Bridge) pushState(ctx context.Context, idx, nValue int) {
	if b.mqtt != nil && b.mqtt.IsConnected() && b.topics.DomoticzIn() != "" {
		payload, err := json.Marshal(domoticz.InMessage{Idx: idx, NValue: nValue})
		if err == nil {
			if err = b.mqtt.Publish(b.topics.DomoticzIn(), payload, b.qos, false); err == nil {
				return
			}
		}
		b.logger.Warn("mqtt state update failed, using json api", "idx", idx, "error", err)
	}
	if err := b.domoticz.UpdateDevice(ctx, idx, nValue, ""); err != nil {
		b.logger.Warn("domoticz state update failed", "idx", idx, "error", err)
	}
}

// emit publishes an event to MQTT and WebSocket listeners.
func (b *Bridge) emit(eventType string, dev device.Device, source string) {
	ev := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		MAC:     dev.MAC,
		Name:    dev.Name,
		Unit:    dev.Unit,
		Idx:     dev.Idx,
		Present: dev.IsPresent(),
		Source:  source,
		At:      b.now(),
	}

	if b.broadcaster != nil {
		b.broadcaster.Broadcast(eventType, ev)
	}
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.mqtt.Publish(b.topics.Event(eventType), payload, b.qos, false); err != nil {
		b.logger.Debug("publishing event failed", "type", eventType, "error", err)
	}
	if eventType == EventPresenceChanged {
		if err := b.mqtt.Publish(b.topics.DeviceState(dev.MAC), payload, b.qos, true); err != nil {
			b.logger.Debug("publishing device state failed", "mac", dev.MAC, "error", err)
		}
	}
}

// levelFilter returns the host filter for an import level.
func levelFilter(level int) (string, error) {
	switch level {
	case LevelWiFi:
		return presence.FilterWiFi, nil
	case LevelEthernet:
		return presence.FilterEthernet, nil
	case LevelActive:
		return presence.FilterActive, nil
	case LevelAll:
		return presence.FilterAll, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownLevel, level)
	}
}
