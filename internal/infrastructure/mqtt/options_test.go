package mqtt

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/fritz-presence/internal/infrastructure/config"
)

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.MQTTConfig
		wantBroker string
		wantUser   string
		wantTLS    bool
	}{
		{
			name: "plain",
			cfg: config.MQTTConfig{Broker: config.MQTTBrokerConfig{
				Host: "localhost", Port: 1883, ClientID: "fp",
			}},
			wantBroker: "tcp://localhost:1883",
		},
		{
			name: "tls with auth",
			cfg: config.MQTTConfig{
				Broker: config.MQTTBrokerConfig{Host: "mqtt.lan", Port: 8883, ClientID: "fp", TLS: true},
				Auth:   config.MQTTAuthConfig{Username: "fritz", Password: "secret"},
			},
			wantBroker: "ssl://mqtt.lan:8883",
			wantUser:   "fritz",
			wantTLS:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := buildClientOptions(tt.cfg)

			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantBroker {
				t.Errorf("Servers = %v, want [%s]", opts.Servers, tt.wantBroker)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if (opts.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLSConfig set = %v, want %v", opts.TLSConfig != nil, tt.wantTLS)
			}
			if opts.Order {
				t.Error("Order = true, want handlers dispatched without ordering")
			}
			if !opts.AutoReconnect {
				t.Error("AutoReconnect = false")
			}
		})
	}
}

// A handler that publishes at QoS 1 and waits for the acknowledgement must
// not stall message delivery.
func TestHandlerPublishesWithAck(t *testing.T) {
	client := connect(t, testConfig(t))
	topics := client.Topics()

	replies := make(chan error, 3)
	err := client.Subscribe(topics.DomoticzOut(), 1, func(_ string, payload []byte) error {
		start := time.Now()
		err := client.Publish(topics.DomoticzIn(), payload, 1, false)
		if err == nil && time.Since(start) > 2*time.Second {
			err = errors.New("publish acknowledged late")
		}
		replies <- err
		return err
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := client.Publish(topics.DomoticzOut(), []byte(`{"idx":`+strconv.Itoa(i+1)+`}`), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case err := <-replies:
			if err != nil {
				t.Errorf("handler publish error = %v", err)
			}
		case <-time.After(4 * time.Second):
			t.Fatal("timed out waiting for handler publishes")
		}
	}
}
