// Package influxdb records presence history as InfluxDB time series.
//
// It wraps influxdb-client-go v2 with a non-blocking, batched write API.
// Two measurements are written:
//
//	presence     tags mac, name, source; fields present (bool), state (0/1)
//	router_poll  fields hosts, active, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without time series
//	}
//	defer client.Close()
//
//	client.WritePresence(mac, name, true, "poll", time.Now())
//
// All write methods are no-ops on a nil or closed client.
package influxdb
