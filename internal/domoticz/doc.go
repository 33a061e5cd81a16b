// Package domoticz talks to a Domoticz home-automation server.
//
// Two transports are used:
//
//   - The JSON API (/json.htm) creates, renames, deletes and reads the
//     virtual switches that mirror router hosts. Client wraps it.
//   - MQTT carries state updates (domoticz/in) and user commands
//     (domoticz/out). InMessage and OutMessage are the payloads;
//     DecodeOutMessage tolerates the loosely typed fields Domoticz emits
//     (numbers as strings and vice versa).
//
// Switch types:
//
//	CreateSwitch    Light/Switch, subtype Switch (73), On/Off
//	CreateSelector  Light/Switch, subtype Selector (62), switchtype 18
//
// Example:
//
//	c := domoticz.New(cfg.Domoticz)
//	idx, err := c.CreateSwitch(ctx, "Phone")
//	if err != nil {
//	    return err
//	}
//	err = c.UpdateDevice(ctx, idx, 1, "")
package domoticz
