// Package command applies set_temperature requests to heaters.
//
// A request carries a TemperatureInput, a tagged value that is either a
// literal number, a numeric string, or a reference to another sensor's live
// value (sensor.clagehomeserver_<device>_<field>). The Dispatcher resolves
// it once, clamps it to 10..60 °C, sends it to one device or to all, and
// then asks the coordinator for a fresh poll so the new setpoint shows up
// in the state store.
//
//	var cmd command.Command
//	if err := json.Unmarshal(body, &cmd); err != nil {
//	    return err // wraps ErrInvalidCommandValue
//	}
//	res, err := dispatcher.SetTemperature(ctx, cmd)
package command
