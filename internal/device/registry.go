package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and keeps every device in memory, indexed by unit,
// MAC and Domoticz idx.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the write operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[int]*Device // by unit
	byMAC   map[string]int
	byIdx   map[int]int
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new device registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[int]*Device),
		byMAC:  make(map[string]int),
		byIdx:  make(map[int]int),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[int]*Device, len(devices))
	r.byMAC = make(map[string]int, len(devices))
	r.byIdx = make(map[int]int, len(devices))
	for i := range devices {
		r.put(&devices[i])
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// put stores a copy of d. Caller holds cacheMu.
func (r *Registry) put(d *Device) {
	if old, ok := r.cache[d.Unit]; ok {
		r.unindex(old)
	}
	cpy := d.DeepCopy()
	r.cache[d.Unit] = cpy
	if cpy.MAC != "" {
		r.byMAC[cpy.MAC] = cpy.Unit
	}
	if cpy.Idx > 0 {
		r.byIdx[cpy.Idx] = cpy.Unit
	}
}

// unindex drops the secondary keys of d. Caller holds cacheMu.
func (r *Registry) unindex(d *Device) {
	if d.MAC != "" && r.byMAC[d.MAC] == d.Unit {
		delete(r.byMAC, d.MAC)
	}
	if d.Idx > 0 && r.byIdx[d.Idx] == d.Unit {
		delete(r.byIdx, d.Idx)
	}
}

// List returns every device, ordered by unit.
func (r *Registry) List() []Device {
	return r.collect(func(*Device) bool { return true })
}

// ListPresence returns the presence switches, ordered by unit.
func (r *Registry) ListPresence() []Device {
	return r.collect(func(d *Device) bool { return d.Kind == KindPresence })
}

func (r *Registry) collect(keep func(*Device) bool) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Unit < devices[j].Unit })
	return devices
}

// GetByUnit returns a copy of the device with the given unit.
func (r *Registry) GetByUnit(unit int) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	d, ok := r.cache[unit]
	if !ok {
		return nil, fmt.Errorf("%w: unit %d", ErrDeviceNotFound, unit)
	}
	return d.DeepCopy(), nil
}

// GetByMAC returns a copy of the switch mirroring mac.
func (r *Registry) GetByMAC(mac string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	unit, ok := r.byMAC[mac]
	if !ok {
		return nil, fmt.Errorf("%w: mac %s", ErrDeviceNotFound, mac)
	}
	return r.cache[unit].DeepCopy(), nil
}

// GetByIdx returns a copy of the device with the given Domoticz idx.
func (r *Registry) GetByIdx(idx int) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	unit, ok := r.byIdx[idx]
	if !ok {
		return nil, fmt.Errorf("%w: idx %d", ErrDeviceNotFound, idx)
	}
	return r.cache[unit].DeepCopy(), nil
}

// HasMAC reports whether a switch mirrors mac.
func (r *Registry) HasMAC(mac string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, ok := r.byMAC[mac]
	return ok
}

// Create persists d and caches it.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - d: Device with unit, kind and name set; timestamps are filled in
//
// Returns:
//   - error: ErrInvalidDevice, ErrDeviceExists or a database error
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.put(d)
	r.cacheMu.Unlock()

	r.logger.Debug("device created", "unit", d.Unit, "mac", d.MAC, "name", d.Name)
	return nil
}

// Update persists d and refreshes the cached copy.
func (r *Registry) Update(ctx context.Context, d *Device) error {
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.put(d)
	r.cacheMu.Unlock()
	return nil
}

// Delete removes the device with the given unit.
func (r *Registry) Delete(ctx context.Context, unit int) error {
	if err := r.repo.Delete(ctx, unit); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if d, ok := r.cache[unit]; ok {
		r.unindex(d)
		delete(r.cache, unit)
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device deleted", "unit", unit)
	return nil
}

// NextUnit returns the unit for the next presence switch.
func (r *Registry) NextUnit(ctx context.Context) (int, error) {
	return r.repo.NextUnit(ctx)
}

// RecordEvent appends a presence transition to the history.
func (r *Registry) RecordEvent(ctx context.Context, event Event) error {
	return r.repo.RecordEvent(ctx, event)
}

// History returns the newest presence events for mac.
func (r *Registry) History(ctx context.Context, mac string, limit int) ([]Event, error) {
	return r.repo.History(ctx, mac, limit)
}

// PruneHistory deletes presence events older than olderThan.
func (r *Registry) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := r.repo.PruneHistory(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("presence history pruned", "deleted", n)
	}
	return n, nil
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
