package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPresence = "presence"
	MeasurementPoll     = "router_poll"
)

// WritePresence records the presence state of one mirrored device.
//
// Parameters:
//   - mac: Hardware address (tag)
//   - name: Device name (tag)
//   - present: Whether the router reports the host as active
//   - source: What produced the sample ("poll", "command")
//   - at: Sample time
//
// Example:
//
//	client.WritePresence("AA:BB:CC:DD:EE:FF", "phone", true, "poll", time.Now())
func (c *Client) WritePresence(mac, name string, present bool, source string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	state := 0
	if present {
		state = 1
	}

	point := write.NewPoint(
		MeasurementPresence,
		map[string]string{
			"mac":    mac,
			"name":   name,
			"source": source,
		},
		map[string]any{
			"present": present,
			"state":   state,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WritePollStats records one router poll: how many hosts were known, how
// many were active and how long the router took to answer.
func (c *Client) WritePollStats(hosts, active int, took time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementPoll,
		map[string]string{},
		map[string]any{
			"hosts":       hosts,
			"active":      active,
			"duration_ms": took.Milliseconds(),
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}
