package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/domoticz"
)

// Switch commands as Domoticz names them.
const (
	CommandOn       = "On"
	CommandOff      = "Off"
	CommandSet      = "Set"
	CommandSetLevel = "Set Level"
)

// AdminResult reports what an admin selector action did.
type AdminResult struct {
	Level   int `json:"level"`
	Created int `json:"created"`
	Removed int `json:"removed"`
}

// HandleCommand executes a switch command.
//
// On the admin selector, "Set Level" (or "Set") runs the action for level;
// levels without an action and other commands are ignored. On a presence switch, "On" sends
// wake-on-LAN to the device; other commands are ignored.
//
// Parameters:
//   - ctx: Context for router and Domoticz requests
//   - unit: Target unit
//   - command: Command name, surrounding whitespace is ignored
//   - level: Selector level
//
// Returns:
//   - error: ErrUnknownUnit or the action's error
func (b *Bridge) HandleCommand(ctx context.Context, unit int, command string, level int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}
	_, err := b.handleCommand(ctx, unit, strings.TrimSpace(command), level)
	return err
}

// RunAdmin runs an admin selector level and reports the outcome. Unlike
// HandleCommand it returns ErrUnknownLevel for levels without an action.
func (b *Bridge) RunAdmin(ctx context.Context, level int) (AdminResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return AdminResult{}, ErrNotStarted
	}
	return b.runAdmin(ctx, level)
}

// WakeDevice sends wake-on-LAN to the switch mirroring mac.
func (b *Bridge) WakeDevice(ctx context.Context, mac string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}
	dev, err := b.registry.GetByMAC(mac)
	if err != nil {
		return err
	}
	_, err = b.handleCommand(ctx, dev.Unit, CommandOn, 0)
	return err
}

// handleCommand dispatches a command. Caller holds mu.
func (b *Bridge) handleCommand(ctx context.Context, unit int, command string, level int) (*device.Device, error) {
	dev, err := b.registry.GetByUnit(unit)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, unit)
		}
		return nil, err
	}

	b.logger.Debug("command received", "unit", unit, "command", command, "level", level)

	if dev.Kind == device.KindAdmin {
		if command != CommandSetLevel && command != CommandSet {
			return dev, nil
		}
		_, err := b.runAdmin(ctx, level)
		if errors.Is(err, ErrUnknownLevel) {
			b.logger.Debug("admin level ignored", "level", level)
			return dev, nil
		}
		return dev, err
	}

	if command != CommandOn {
		return dev, nil
	}
	if err := b.tracker.WakeOnLAN(ctx, dev.MAC); err != nil {
		return dev, fmt.Errorf("waking %s: %w", dev.MAC, err)
	}
	b.logger.Info("wake-on-lan sent", "mac", dev.MAC, "name", dev.Name)
	return dev, nil
}

// runAdmin executes an admin selector level. Caller holds mu.
func (b *Bridge) runAdmin(ctx context.Context, level int) (AdminResult, error) {
	result := AdminResult{Level: level}
	if level == LevelRemove {
		result.Removed = b.removeAllDevices(ctx)
		return result, nil
	}

	filter, err := levelFilter(level)
	if err != nil {
		return result, err
	}
	hosts, err := b.tracker.Hosts(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("listing %s hosts: %w", filter, err)
	}
	result.Created = b.createFromHosts(ctx, hosts)
	b.logger.Info("hosts imported", "filter", filter, "hosts", len(hosts), "created", result.Created)
	return result, nil
}

// HandleDomoticzOut handles a domoticz/out message. Messages for other
// hardware, unknown devices and echoes of our own state updates are
// ignored.
func (b *Bridge) HandleDomoticzOut(_ string, payload []byte) error {
	msg, err := domoticz.DecodeOutMessage(payload)
	if err != nil {
		return err
	}
	if b.hardwareIdx > 0 && msg.HardwareID != b.hardwareIdx {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	dev, err := b.registry.GetByIdx(msg.Idx)
	if err != nil {
		return nil
	}

	if dev.Kind == device.KindPresence && msg.NValue == dev.NValue {
		return nil
	}
	if dev.Kind == device.KindAdmin && msg.Level() == 0 {
		return nil
	}

	_, err = b.handleCommand(b.ctx, dev.Unit, msg.Command(), msg.Level())

	// A presence switch mirrors the router; undo the user's toggle.
	if dev.Kind == device.KindPresence {
		b.pushState(b.ctx, dev.Idx, dev.NValue)
	}
	return err
}
