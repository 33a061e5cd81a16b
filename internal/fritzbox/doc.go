// Package fritzbox is a TR-064 client for AVM Fritz!Box routers.
//
// It covers the Hosts service only: the LAN host table, single host
// lookups and wake-on-LAN. Requests are SOAP over HTTP on port 49000 and
// are authenticated with HTTP digest auth; the challenge is cached so
// subsequent calls need a single round trip.
//
// # Usage
//
//	client := fritzbox.New(cfg.Router)
//	defer client.Close()
//
//	hosts, err := client.HostList(ctx)
//	host, err := client.SpecificHost(ctx, "AA:BB:CC:DD:EE:FF")
//	if errors.Is(err, fritzbox.ErrUnknownHost) {
//	    // not in the router's table
//	}
//
// The router user needs the "FRITZ!Box settings" permission; without it
// actions fail with a 606 fault reported as ErrAuthFailed.
package fritzbox
