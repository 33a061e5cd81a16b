package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/domoticz"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/database"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/mqtt"
	"github.com/nerrad567/fritz-presence/internal/presence"
	_ "github.com/nerrad567/fritz-presence/migrations"
)

// fakeTracker mirrors presence.Tracker semantics over a fixed host table.
type fakeTracker struct {
	mu         sync.Mutex
	hosts      []fritzbox.Host
	registered map[string]bool
	readErr    error
	wakeErr    error
	woken      []string
	reads      int
	stopped    int
}

func newFakeTracker(hosts ...fritzbox.Host) *fakeTracker {
	return &fakeTracker{hosts: hosts, registered: map[string]bool{}}
}

func (f *fakeTracker) ReadStatus(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.readErr
}

func (f *fakeTracker) AddDevice(mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[mac] = true
	return nil
}

func (f *fakeTracker) RemoveDevice(mac string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, mac)
}

func (f *fakeTracker) host(mac string) (fritzbox.Host, error) {
	if !f.registered[mac] {
		return fritzbox.Host{}, fmt.Errorf("%w: %s", presence.ErrUnknownDevice, mac)
	}
	for _, h := range f.hosts {
		if h.MAC == mac {
			return h, nil
		}
	}
	return fritzbox.Host{}, nil
}

func (f *fakeTracker) IsDeviceConnected(mac string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.host(mac)
	return h.Active, err
}

func (f *fakeTracker) DeviceName(mac string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.host(mac)
	return h.HostName, err
}

func (f *fakeTracker) Snapshot() []fritzbox.Host {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fritzbox.Host(nil), f.hosts...)
}

func (f *fakeTracker) Hosts(_ context.Context, filter string) ([]fritzbox.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fritzbox.Host
	for _, h := range f.hosts {
		switch filter {
		case presence.FilterWiFi:
			if !h.IsWiFi() {
				continue
			}
		case presence.FilterEthernet:
			if !h.IsEthernet() {
				continue
			}
		case presence.FilterActive:
			if !h.Active {
				continue
			}
		case presence.FilterAll:
		default:
			return nil, presence.ErrUnknownFilter
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeTracker) WakeOnLAN(_ context.Context, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wakeErr != nil {
		return f.wakeErr
	}
	f.woken = append(f.woken, mac)
	return nil
}

func (f *fakeTracker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeTracker) setHosts(hosts ...fritzbox.Host) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = hosts
}

func (f *fakeTracker) isRegistered(mac string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[mac]
}

// fakeHost records Domoticz JSON API calls.
type fakeHost struct {
	mu        sync.Mutex
	nextIdx   int
	created   map[int]string
	selectors map[int]domoticz.SelectorOptions
	renamed   map[int]string
	deleted   []int
	updates   []domoticz.InMessage
	createErr error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		nextIdx:   100,
		created:   map[int]string{},
		selectors: map[int]domoticz.SelectorOptions{},
		renamed:   map[int]string{},
	}
}

func (f *fakeHost) CreateSwitch(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextIdx++
	f.created[f.nextIdx] = name
	return f.nextIdx, nil
}

func (f *fakeHost) CreateSelector(_ context.Context, name string, opts domoticz.SelectorOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIdx++
	f.created[f.nextIdx] = name
	f.selectors[f.nextIdx] = opts
	return f.nextIdx, nil
}

func (f *fakeHost) RenameDevice(_ context.Context, idx int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[idx] = name
	return nil
}

func (f *fakeHost) DeleteDevice(_ context.Context, idx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, idx)
	return nil
}

func (f *fakeHost) UpdateDevice(_ context.Context, idx, nValue int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, domoticz.InMessage{Idx: idx, NValue: nValue})
	return nil
}

func (f *fakeHost) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeMQTT records publications and keeps one handler per topic.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	published []publication
	handlers  map[string]mqtt.MessageHandler
}

type publication struct {
	topic    string
	payload  []byte
	retained bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{connected: true, handlers: map[string]mqtt.MessageHandler{}}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publication{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) on(topic string) []publication {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publication
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fakeMetrics struct {
	mu       sync.Mutex
	presence []string
	polls    int
}

func (f *fakeMetrics) WritePresence(mac, _ string, present bool, _ string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, fmt.Sprintf("%s=%t", mac, present))
}

func (f *fakeMetrics) WritePollStats(int, int, time.Duration, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeBroadcaster) Broadcast(_ string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := payload.(Event); ok {
		f.events = append(f.events, ev)
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRegistry returns a registry over a migrated in-memory database.
func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	reg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg
}
