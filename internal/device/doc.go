// Package device holds the registry of homeserver/heater pairs.
//
// A Device is identified by the slug of its configured name. Devices come
// from two places: the devices list in the config file, and config entries
// added at runtime through the setup flow and persisted in the homeservers
// table (Repository). Both end up in the Registry, each paired with a
// homeserver.Client.
//
// The registry wraps every client so one device never sees overlapping
// requests; a status poll and a setpoint command on the same device queue,
// while different devices proceed in parallel.
//
// StateHistoryRepository keeps a local record of successful snapshots in
// the state_history table, pruned by age.
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//	err := reg.Add(device.Device{
//	    ID:           device.Slugify("Kitchen"),
//	    Name:         "Kitchen",
//	    Address:      "192.168.1.50",
//	    HomeserverID: "F8F005DA29C8",
//	    HeaterID:     "2049DB0CD7",
//	    Source:       device.SourceConfig,
//	}, client)
package device
