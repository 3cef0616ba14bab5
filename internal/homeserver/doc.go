// Package homeserver is the client boundary to CLAGE Homeserver bridges.
//
// A homeserver exposes a small HTTPS API for the DSX Touch water heaters on
// its radio bus. This package reads heater status into a flat Snapshot keyed
// by the names of the static sensor table, and sends new setpoints.
//
// Failures fall into three classes, matched with errors.Is:
//   - ErrConnection: unreachable, timeout, non-2xx, or malformed body
//   - ErrDeviceReportedFailure: the homeserver answered but flagged failure
//
// Example:
//
//	c, err := homeserver.NewHTTPClient(homeserver.Config{
//	    Address:     "192.168.1.50",
//	    HeaterID:    "2049DB0CD7",
//	    InsecureTLS: true,
//	})
//	snap, err := c.RequestStatus(ctx)
//	tOut, _ := snap.Numeric("heater_status_tOut")
package homeserver
