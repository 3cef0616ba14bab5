package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStatus  = "homeserver_status"
	MeasurementCommand = "homeserver_command"
)

// WriteStatus records the numeric fields of one status snapshot.
//
// Non-numeric fields are the caller's concern; an empty map writes nothing.
//
// Example:
//
//	client.WriteStatus("kitchen", map[string]float64{
//	    "heater_status_tOut": 44.8,
//	    "heater_status_flow": 0,
//	}, time.Now())
func (c *Client) WriteStatus(deviceID string, fields map[string]float64, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementStatus,
		map[string]string{"device_id": deviceID},
		values,
		ts,
	))
}

// WriteCommand records the outcome of one setpoint command on one device.
func (c *Client) WriteCommand(deviceID, commandID string, temperature int, ok bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementCommand,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"command_id":  commandID,
			"temperature": temperature,
			"ok":          ok,
		},
		ts,
	))
}
