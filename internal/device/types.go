package device

import (
	"fmt"
	"time"
)

// Source records where a device definition came from.
type Source string

const (
	// SourceConfig marks devices declared in the config file.
	SourceConfig Source = "config"

	// SourceEntry marks devices added at runtime and persisted in SQLite.
	SourceEntry Source = "entry"
)

// Manufacturer is reported in device metadata for every heater.
const Manufacturer = "CLAGE GmbH"

// EntityPrefix starts every sensor entity id: EntityPrefix + device + "_" + field.
const EntityPrefix = "sensor.clagehomeserver_"

// Device is one homeserver/heater pair the service polls and commands.
type Device struct {
	// ID is the slug of Name and keys every per-device structure.
	ID string `json:"id"`

	// Name is the name the device was configured with.
	Name string `json:"name"`

	// Address is the homeserver's IP address.
	Address string `json:"ip_address"`

	HomeserverID string `json:"homeserver_id"`
	HeaterID     string `json:"heater_id"`

	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityID returns the sensor entity id of field on this device.
//
// Example: sensor.clagehomeserver_kitchen_heater_status_tOut
func (d Device) EntityID(field string) string {
	return EntityPrefix + d.ID + "_" + field
}

// UniqueID returns the stable per-sensor unique id.
func (d Device) UniqueID(field string) string {
	return d.ID + "_" + field
}

// Model returns the model string shown in device metadata.
func (d Device) Model() string {
	return fmt.Sprintf("DSX Touch %s@%s", d.HeaterID, d.HomeserverID)
}

// ConfigurationURL returns the homeserver's web UI address.
func (d Device) ConfigurationURL() string {
	return "https://" + d.Address
}
