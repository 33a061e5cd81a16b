package broker

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

const listenerID = "fritzpresence-tcp"

// Broker is an in-process MQTT broker for installations without Mosquitto.
//
// Domoticz and Fritz!Presence both connect to it as ordinary clients.
type Broker struct {
	server *mochi.Server
	logger *slog.Logger
	addr   string

	closeOnce sync.Once
}

// New builds a broker listening on cfg.Embedded.Listen.
//
// When cfg.Auth.Username is set, only that user may connect; otherwise all
// clients are allowed.
//
// Parameters:
//   - cfg: MQTT configuration (embedded listener and credentials)
//   - logger: Structured logger shared with the broker internals
//
// Returns:
//   - *Broker: Configured broker, not yet serving
//   - error: If the hooks or listener cannot be registered
func New(cfg config.MQTTConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})

	if cfg.Auth.Username != "" {
		err := server.AddHook(new(auth.Hook), &auth.Options{
			Ledger: &auth.Ledger{
				Auth: auth.AuthRules{
					{Username: auth.RString(cfg.Auth.Username), Password: auth.RString(cfg.Auth.Password), Allow: true},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("adding auth hook: %w", err)
		}
	} else if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("adding allow hook: %w", err)
	}

	if err := server.AddHook(&sessionHook{logger: logger}, nil); err != nil {
		return nil, fmt.Errorf("adding session hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: listenerID, Address: cfg.Embedded.Listen})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("adding listener %s: %w", cfg.Embedded.Listen, err)
	}

	return &Broker{server: server, logger: logger, addr: cfg.Embedded.Listen}, nil
}

// Start begins accepting client connections.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("serving mqtt broker: %w", err)
	}
	b.logger.Info("embedded mqtt broker listening", "address", b.addr)
	return nil
}

// Close disconnects all clients and stops the listener. Safe to call twice.
func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.server.Close()
	})
	return err
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return len(b.server.Clients.GetAll())
}

// sessionHook logs client sessions.
type sessionHook struct {
	mochi.HookBase
	logger *slog.Logger
}

func (h *sessionHook) ID() string { return "fritzpresence-sessions" }

func (h *sessionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{mochi.OnSessionEstablished, mochi.OnDisconnect}, []byte{b})
}

func (h *sessionHook) OnSessionEstablished(cl *mochi.Client, _ packets.Packet) {
	h.logger.Debug("mqtt client connected", "client_id", cl.ID, "remote", cl.Net.Remote)
}

func (h *sessionHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	h.logger.Debug("mqtt client disconnected", "client_id", cl.ID, "error", err, "expire", expire)
}
