package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/fritz-presence/internal/fritzbox"
)

// Router is the subset of the router client the tracker needs.
// *fritzbox.Client satisfies it.
type Router interface {
	HostList(ctx context.Context) ([]fritzbox.Host, error)
	WakeOnLAN(ctx context.Context, mac string) error
	Close()
}

// Logger is the logging interface used by the tracker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Tracker.
type Options struct {
	// Filters are operator defined host filters by name.
	Filters map[string]string

	// LocalWOL enables the UDP magic-packet fallback.
	LocalWOL bool

	// BroadcastAddress is where local magic packets go. Default 255.255.255.255:9
	BroadcastAddress string

	Logger Logger
}

// Tracker keeps the latest router host snapshot and answers presence
// questions for a set of registered MAC addresses.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Tracker struct {
	router    Router
	filters   map[string]*Filter
	localWOL  bool
	broadcast string
	logger    Logger

	// sendMagic is swapped in tests.
	sendMagic func(ctx context.Context, addr, mac string) error

	mu         sync.RWMutex
	hosts      map[string]fritzbox.Host
	order      []string
	registered map[string]struct{}
	lastRead   time.Time
	stopped    bool
}

// NewTracker creates a tracker and registers the given MACs.
//
// Parameters:
//   - router: Router client
//   - macs: Initial MAC addresses (already validated)
//   - opts: Filters, wake-on-LAN fallback and logger
//
// Returns:
//   - *Tracker: Ready tracker with an empty snapshot
//   - error: ErrInvalidFilter if a filter does not compile
func NewTracker(router Router, macs []string, opts Options) (*Tracker, error) {
	filters, err := compileFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		router:     router,
		filters:    filters,
		localWOL:   opts.LocalWOL,
		broadcast:  opts.BroadcastAddress,
		logger:     opts.Logger,
		sendMagic:  SendMagicPacket,
		hosts:      make(map[string]fritzbox.Host),
		registered: make(map[string]struct{}),
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	if t.broadcast == "" {
		t.broadcast = "255.255.255.255:9"
	}

	for _, mac := range macs {
		if err := t.AddDevice(mac); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadStatus refreshes the host snapshot from the router.
func (t *Tracker) ReadStatus(ctx context.Context) error {
	if t.isStopped() {
		return ErrStopped
	}

	hosts, err := t.router.HostList(ctx)
	if err != nil {
		return fmt.Errorf("reading router status: %w", err)
	}

	byMAC := make(map[string]fritzbox.Host, len(hosts))
	order := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h.MAC == "" {
			continue
		}
		if _, dup := byMAC[h.MAC]; !dup {
			order = append(order, h.MAC)
		}
		byMAC[h.MAC] = h
	}

	t.mu.Lock()
	t.hosts = byMAC
	t.order = order
	t.lastRead = time.Now()
	t.mu.Unlock()

	t.logger.Debug("router status read", "hosts", len(byMAC))
	return nil
}

// AddDevice registers mac for presence queries.
func (t *Tracker) AddDevice(mac string) error {
	norm, err := fritzbox.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.registered[norm] = struct{}{}
	t.mu.Unlock()
	return nil
}

// RemoveDevice unregisters mac. Unknown MACs are ignored.
func (t *Tracker) RemoveDevice(mac string) {
	norm, err := fritzbox.NormalizeMAC(mac)
	if err != nil {
		return
	}
	t.mu.Lock()
	delete(t.registered, norm)
	t.mu.Unlock()
}

// Devices returns the registered MACs in sorted order.
func (t *Tracker) Devices() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	macs := make([]string, 0, len(t.registered))
	for mac := range t.registered {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// IsDeviceConnected reports whether the router lists mac as active.
// A registered MAC missing from the snapshot is not connected.
//
// Returns:
//   - bool: Whether the host is active
//   - error: ErrUnknownDevice when mac is not registered
func (t *Tracker) IsDeviceConnected(mac string) (bool, error) {
	host, _, err := t.lookup(mac)
	if err != nil {
		return false, err
	}
	return host.Active, nil
}

// DeviceName returns the router's host name for mac, or "" when the router
// does not currently list the host.
//
// Returns:
//   - string: Host name
//   - error: ErrUnknownDevice when mac is not registered
func (t *Tracker) DeviceName(mac string) (string, error) {
	host, _, err := t.lookup(mac)
	if err != nil {
		return "", err
	}
	return host.HostName, nil
}

// Host returns the snapshot entry for any MAC, registered or not.
func (t *Tracker) Host(mac string) (fritzbox.Host, bool) {
	norm, err := fritzbox.NormalizeMAC(mac)
	if err != nil {
		return fritzbox.Host{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.hosts[norm]
	return h, ok
}

func (t *Tracker) lookup(mac string) (fritzbox.Host, bool, error) {
	norm, err := fritzbox.NormalizeMAC(mac)
	if err != nil {
		return fritzbox.Host{}, false, fmt.Errorf("%w: %w", ErrUnknownDevice, err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.registered[norm]; !ok {
		return fritzbox.Host{}, false, fmt.Errorf("%w: %s", ErrUnknownDevice, norm)
	}
	h, found := t.hosts[norm]
	return h, found, nil
}

// Snapshot returns the hosts from the last ReadStatus in router order.
func (t *Tracker) Snapshot() []fritzbox.Host {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hosts := make([]fritzbox.Host, 0, len(t.order))
	for _, mac := range t.order {
		hosts = append(hosts, t.hosts[mac])
	}
	return hosts
}

// LastRead returns when the snapshot was last refreshed.
func (t *Tracker) LastRead() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastRead
}

// Hosts refreshes the snapshot and returns the hosts matching the named
// filter.
func (t *Tracker) Hosts(ctx context.Context, filter string) ([]fritzbox.Host, error) {
	f, ok := t.filters[filter]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, filter)
	}
	if err := t.ReadStatus(ctx); err != nil {
		return nil, err
	}
	return f.Apply(t.Snapshot()), nil
}

// WifiHosts returns hosts attached over WLAN.
func (t *Tracker) WifiHosts(ctx context.Context) ([]fritzbox.Host, error) {
	return t.Hosts(ctx, FilterWiFi)
}

// EthernetHosts returns hosts attached by cable.
func (t *Tracker) EthernetHosts(ctx context.Context) ([]fritzbox.Host, error) {
	return t.Hosts(ctx, FilterEthernet)
}

// ActiveHosts returns hosts the router currently sees as active.
func (t *Tracker) ActiveHosts(ctx context.Context) ([]fritzbox.Host, error) {
	return t.Hosts(ctx, FilterActive)
}

// AllHosts returns every host the router knows.
func (t *Tracker) AllHosts(ctx context.Context) ([]fritzbox.Host, error) {
	return t.Hosts(ctx, FilterAll)
}

// FilterNames lists the available filters.
func (t *Tracker) FilterNames() []string {
	return sortedFilterNames(t.filters)
}

// WakeOnLAN asks the router to wake mac. When the router fails and the
// local fallback is enabled, a magic packet is broadcast instead.
func (t *Tracker) WakeOnLAN(ctx context.Context, mac string) error {
	if t.isStopped() {
		return ErrStopped
	}

	routerErr := t.router.WakeOnLAN(ctx, mac)
	if routerErr == nil {
		t.logger.Info("wake-on-lan sent via router", "mac", mac)
		return nil
	}
	if errors.Is(routerErr, fritzbox.ErrInvalidMAC) || !t.localWOL {
		return fmt.Errorf("%w: %w", ErrWakeFailed, routerErr)
	}

	t.logger.Warn("router wake-on-lan failed, using local magic packet", "mac", mac, "error", routerErr)
	if err := t.sendMagic(ctx, t.broadcast, mac); err != nil {
		return fmt.Errorf("%w: router: %w; local: %w", ErrWakeFailed, routerErr, err)
	}
	return nil
}

// Stop releases the router client. Further reads and wakes fail with
// ErrStopped.
func (t *Tracker) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()

	if !already {
		t.router.Close()
	}
}

func (t *Tracker) isStopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}
