// Package coordinator keeps the last known status of every homeserver.
//
// A Coordinator polls all registered devices in parallel on a fixed
// interval, writes each successful snapshot to its Store, and hands the
// update to listeners (MQTT, InfluxDB, history, WebSocket). A failing
// device keeps its previous snapshot and never blocks the others.
//
// Refreshes are serialised: a refresh requested while one is running waits
// for it to finish and then polls again.
//
//	coord := coordinator.New(registry, coordinator.Config{
//	    Interval:       cfg.Homeserver.ScanInterval,
//	    RequestTimeout: cfg.Homeserver.RequestTimeout,
//	    MaxParallel:    cfg.Homeserver.MaxParallel,
//	})
//	coord.AddListener(publisher.HandleUpdate)
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Stop()
package coordinator
