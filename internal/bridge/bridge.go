package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/fritz-presence/internal/device"
	"github.com/nerrad567/fritz-presence/internal/domoticz"
	"github.com/nerrad567/fritz-presence/internal/fritzbox"
	"github.com/nerrad567/fritz-presence/internal/infrastructure/mqtt"
)

const (
	// heartbeatSpec matches the Domoticz plugin heartbeat of ten seconds.
	// The poll interval gate inside Heartbeat decides when the router is read.
	heartbeatSpec = "@every 10s"

	// pruneSpec runs the presence history retention.
	pruneSpec = "@daily"

	// stopTimeout bounds how long Stop waits for a running job.
	stopTimeout = 30 * time.Second

	// DefaultAdminName is the admin selector name when none is configured.
	DefaultAdminName = "FP - Admin"
)

// Tracker is the presence helper. *presence.Tracker satisfies it.
type Tracker interface {
	ReadStatus(ctx context.Context) error
	AddDevice(mac string) error
	RemoveDevice(mac string)
	IsDeviceConnected(mac string) (bool, error)
	DeviceName(mac string) (string, error)
	Snapshot() []fritzbox.Host
	Hosts(ctx context.Context, filter string) ([]fritzbox.Host, error)
	WakeOnLAN(ctx context.Context, mac string) error
	Stop()
}

// Host is the Domoticz JSON API. *domoticz.Client satisfies it.
type Host interface {
	CreateSwitch(ctx context.Context, name string) (int, error)
	CreateSelector(ctx context.Context, name string, opts domoticz.SelectorOptions) (int, error)
	RenameDevice(ctx context.Context, idx int, name string) error
	DeleteDevice(ctx context.Context, idx int) error
	UpdateDevice(ctx context.Context, idx, nValue int, sValue string) error
}

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Metrics receives presence samples. *influxdb.Client satisfies it.
type Metrics interface {
	WritePresence(mac, name string, present bool, source string, at time.Time)
	WritePollStats(hosts, active int, took time.Duration, at time.Time)
}

// Broadcaster fans events out to live clients. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds the dependencies and settings of a Bridge.
type Options struct {
	// Tracker, Domoticz and Registry are required.
	Tracker  Tracker
	Domoticz Host
	Registry *device.Registry

	// MQTT is optional. Without it state goes through the JSON API and no
	// commands are received from Domoticz.
	MQTT   MQTTClient
	Topics mqtt.Topics
	QoS    byte

	// Metrics and Broadcaster are optional.
	Metrics     Metrics
	Broadcaster Broadcaster

	Logger Logger

	// PollInterval is how often the router is read.
	PollInterval time.Duration

	// InitialMACs are mirrored on Start when not yet present.
	InitialMACs []string

	// HardwareIdx filters domoticz/out messages to our Dummy hardware.
	// Zero accepts every message.
	HardwareIdx int

	AdminName string

	// HistoryRetention prunes the presence history daily. Zero disables.
	HistoryRetention time.Duration

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Bridge mirrors router presence into Domoticz switches.
type Bridge struct {
	tracker     Tracker
	domoticz    Host
	registry    *device.Registry
	mqtt        MQTTClient
	topics      mqtt.Topics
	qos         byte
	metrics     Metrics
	broadcaster Broadcaster
	logger      Logger

	pollInterval time.Duration
	initialMACs  []string
	hardwareIdx  int
	adminName    string
	retention    time.Duration
	now          func() time.Time

	// mu serialises heartbeats and commands.
	mu       sync.Mutex
	nextPoll time.Time
	started  bool

	heartbeat string
	scheduler *cron.Cron
	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if opts.Domoticz == nil {
		return nil, fmt.Errorf("domoticz client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		tracker:      opts.Tracker,
		domoticz:     opts.Domoticz,
		registry:     opts.Registry,
		mqtt:         opts.MQTT,
		topics:       opts.Topics,
		qos:          opts.QoS,
		metrics:      opts.Metrics,
		broadcaster:  opts.Broadcaster,
		logger:       opts.Logger,
		pollInterval: opts.PollInterval,
		initialMACs:  opts.InitialMACs,
		hardwareIdx:  opts.HardwareIdx,
		adminName:    opts.AdminName,
		retention:    opts.HistoryRetention,
		now:          opts.Clock,
		heartbeat:    heartbeatSpec,
		scheduler:    cron.New(),
		ctx:          ctx,
		ctxCancel:    cancel,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	if b.adminName == "" {
		b.adminName = DefaultAdminName
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Start creates the admin selector and the configured switches, registers
// every mirrored MAC with the tracker, subscribes to Domoticz commands and
// starts the heartbeat.
//
// Parameters:
//   - ctx: Context for the start-up requests
//
// Returns:
//   - error: When the admin selector cannot be created or the command
//     subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("presence bridge starting")

	if err := b.ensureAdminSwitch(ctx); err != nil {
		return fmt.Errorf("creating admin selector: %w", err)
	}
	b.createInitialDevices(ctx)

	for _, dev := range b.registry.ListPresence() {
		if err := b.tracker.AddDevice(dev.MAC); err != nil {
			b.logger.Error("registering device with tracker failed", "mac", dev.MAC, "error", err)
		}
	}

	if b.mqtt != nil && b.topics.DomoticzOut() != "" {
		if err := b.mqtt.Subscribe(b.topics.DomoticzOut(), b.qos, b.HandleDomoticzOut); err != nil {
			return fmt.Errorf("subscribing to %s: %w", b.topics.DomoticzOut(), err)
		}
		b.logger.Info("subscribed to domoticz commands", "topic", b.topics.DomoticzOut())
	}

	if _, err := b.scheduler.AddFunc(b.heartbeat, b.heartbeatJob); err != nil {
		return fmt.Errorf("scheduling heartbeat: %w", err)
	}
	if b.retention > 0 {
		if _, err := b.scheduler.AddFunc(pruneSpec, b.pruneJob); err != nil {
			return fmt.Errorf("scheduling history pruning: %w", err)
		}
	}

	b.nextPoll = b.now()
	b.started = true
	b.scheduler.Start()

	b.logger.Info("presence bridge started",
		"devices", len(b.registry.ListPresence()),
		"poll_interval", b.pollInterval.String())
	return nil
}

// Stop halts the heartbeat and releases the tracker. Safe to call twice.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		stopped := b.scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-time.After(stopTimeout):
			b.logger.Warn("timed out waiting for scheduled job")
		}
		b.ctxCancel()

		b.mu.Lock()
		b.started = false
		b.mu.Unlock()

		b.tracker.Stop()
		b.logger.Info("presence bridge stopped")
	})
}

func (b *Bridge) heartbeatJob() {
	if err := b.Heartbeat(b.ctx); err != nil {
		b.logger.Error("heartbeat failed", "error", err)
	}
}

func (b *Bridge) pruneJob() {
	if _, err := b.registry.PruneHistory(b.ctx, b.retention); err != nil {
		b.logger.Error("pruning presence history failed", "error", err)
	}
}

// NextPoll returns when the next heartbeat will read the router.
func (b *Bridge) NextPoll() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextPoll
}
