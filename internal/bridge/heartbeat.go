package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/presence"
)

// PollResult summarises one router read.
type PollResult struct {
	Hosts   int           `json:"hosts"`
	Active  int           `json:"active"`
	Devices int           `json:"devices"`
	Changed int           `json:"changed"`
	Took    time.Duration `json:"took_ns"`
	At      time.Time     `json:"at"`
}

// Heartbeat reads the router when the poll interval has elapsed and
// updates every presence switch whose state or name changed. Calls before
// the next poll time return immediately.
func (b *Bridge) Heartbeat(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	now := b.now()
	if now.Before(b.nextPoll) {
		return nil
	}
	b.nextPoll = now.Add(b.pollInterval)

	_, err := b.poll(ctx, now)
	return err
}

// PollNow reads the router immediately and restarts the poll interval.
func (b *Bridge) PollNow(ctx context.Context) (PollResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return PollResult{}, ErrNotStarted
	}

	now := b.now()
	b.nextPoll = now.Add(b.pollInterval)
	return b.poll(ctx, now)
}

// poll runs one synchronisation pass. Caller holds mu.
func (b *Bridge) poll(ctx context.Context, now time.Time) (PollResult, error) {
	start := time.Now()
	if err := b.tracker.ReadStatus(ctx); err != nil {
		return PollResult{}, err
	}

	result := PollResult{At: now, Took: time.Since(start)}
	for _, h := range b.tracker.Snapshot() {
		result.Hosts++
		if h.Active {
			result.Active++
		}
	}
	if b.metrics != nil {
		b.metrics.WritePollStats(result.Hosts, result.Active, result.Took, now)
	}

	for _, dev := range b.registry.ListPresence() {
		result.Devices++
		present, name := b.readDevice(dev)

		changed, err := b.updateDevice(ctx, dev, present, name, device.SourcePoll)
		if err != nil {
			b.logger.Error("updating device failed", "mac", dev.MAC, "unit", dev.Unit, "error", err)
			continue
		}
		if changed {
			result.Changed++
		}
	}

	b.logger.Debug("router polled",
		"hosts", result.Hosts,
		"active", result.Active,
		"changed", result.Changed,
		"next_poll", b.nextPoll.Format(time.RFC3339))
	return result, nil
}

// readDevice asks the tracker for a switch's state and name. A MAC the
// tracker does not know is registered late and reported absent under its
// current name.
func (b *Bridge) readDevice(dev device.Device) (present bool, name string) {
	connected, err := b.tracker.IsDeviceConnected(dev.MAC)
	if err == nil {
		name, err = b.tracker.DeviceName(dev.MAC)
	}
	if err != nil {
		if errors.Is(err, presence.ErrUnknownDevice) {
			b.logger.Warn("tracker does not know device yet, registering late", "mac", dev.MAC)
			if addErr := b.tracker.AddDevice(dev.MAC); addErr != nil {
				b.logger.Error("late registration failed", "mac", dev.MAC, "error", addErr)
			}
		} else {
			b.logger.Error("reading device presence failed", "mac", dev.MAC, "error", err)
		}
		return false, dev.Name
	}

	// Hosts that dropped out of the router table keep their last name.
	if name == "" {
		name = dev.Name
	}
	return connected, name
}
