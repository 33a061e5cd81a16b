// Package device provides the registry of mirrored switches.
//
// Every router host that is mirrored into Domoticz has one row here, keyed
// by its hardware address and by its unit number. Unit 1 is reserved for
// the admin selector; presence switches start at unit 2.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                      Device Registry                       │
//	│                                                            │
//	│  ┌──────────────────┐          ┌──────────────────┐        │
//	│  │     Registry     │          │    Repository    │        │
//	│  │   (registry.go)  │─────────▶│  (repository.go) │        │
//	│  │                  │          │                  │        │
//	│  │ • cache by unit  │          │ • devices table  │        │
//	│  │ • MAC/idx lookup │          │ • presence_events│        │
//	│  └──────────────────┘          └──────────────────┘        │
//	└───────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	unit, _ := registry.NextUnit(ctx)
//	err := registry.Create(ctx, &device.Device{
//	    Unit: unit, MAC: "AA:BB:CC:DD:EE:FF", Name: "Phone",
//	    Kind: device.KindPresence, Idx: idx,
//	})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Values returned from it are
// copies; callers may modify them freely.
package device
