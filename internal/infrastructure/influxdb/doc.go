// Package influxdb writes heater telemetry to InfluxDB v2.
//
// Every successful poll becomes one homeserver_status point tagged with the
// device id, carrying the snapshot's numeric fields. Setpoint commands are
// recorded as homeserver_command points.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteStatus("kitchen", fields, time.Now())
//
// Writes are non-blocking and batched per batch_size and flush_interval.
// Batch failures are delivered to the SetOnError callback.
package influxdb
