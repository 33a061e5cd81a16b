// Package presence tracks which registered devices the router sees.
//
// A Tracker holds the last host snapshot read from the router and a set of
// registered MAC addresses. Presence questions about unregistered MACs fail
// with ErrUnknownDevice so the caller can register them late.
//
// Host selections (WiFi, ethernet, active, all, plus operator defined ones)
// are expr-lang expressions evaluated against fritzbox.Host:
//
//	presence:
//	  filters:
//	    guests: 'Active && HostName startsWith "guest"'
//
// Wake-on-LAN goes through the router first; with presence.local_wol
// enabled a UDP magic packet is broadcast when the router call fails.
package presence
