// Package publish fans coordinator updates and command outcomes out to the
// service's sinks.
//
// Bridge puts state, availability and Home Assistant discovery configs on
// MQTT and feeds set_temperature messages to the command dispatcher.
// HealthReporter publishes a periodic service health report. TelemetrySink
// writes to InfluxDB and HistorySink to the SQLite state history.
//
// Sinks are wired by registering their methods as listeners:
//
//	coord.AddListener(bridge.HandleUpdate)
//	coord.AddRefreshListener(bridge.HandleRefresh)
//	dispatcher.AddListener(bridge.HandleResult)
package publish
