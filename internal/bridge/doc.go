// Package bridge keeps the Domoticz presence switches in step with the
// router.
//
// The Bridge reproduces the event model of a Domoticz plugin: Start, Stop,
// a periodic Heartbeat and HandleCommand. All four are serialised by one
// mutex, so a poll never interleaves with a command.
//
// # Data Flow
//
//	┌──────────┐  HostList   ┌──────────┐  ReadStatus  ┌────────────────┐
//	│ Fritz!Box│◀────────────│ presence │◀─────────────│                │
//	│ (TR-064) │  WakeOnLAN  │ Tracker  │◀─────────────│                │
//	└──────────┘             └──────────┘              │                │
//	                                                   │     Bridge     │
//	┌──────────┐ createdevice/renamedevice/udevice     │                │
//	│ Domoticz │◀──────────────────────────────────────│                │
//	│          │        domoticz/in (state)            │                │
//	│          │◀──────────────────────────────────────│                │
//	│          │        domoticz/out (commands)        │                │
//	│          │──────────────────────────────────────▶│                │
//	└──────────┘                                       └───────┬────────┘
//	                                                           │
//	                      device.Registry, InfluxDB, WebSocket ◀┘
//
// # Admin selector
//
// Unit 1 is a selector switch. Its levels import router hosts as new
// presence switches (10 WiFi, 20 Ethernet, 30 active, 40 all) or remove
// every presence switch (50).
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package bridge
