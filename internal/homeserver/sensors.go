package homeserver

import "slices"

// State classes understood by Home Assistant.
const (
	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
)

// Entity categories. An empty category marks a primary sensor.
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// SensorDefinition describes one field of a status snapshot.
//
// Scale is applied to the raw device value when the snapshot is decoded;
// zero means the value is taken as reported.
type SensorDefinition struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Unit           string  `json:"unit,omitempty"`
	StateClass     string  `json:"state_class,omitempty"`
	DeviceClass    string  `json:"device_class,omitempty"`
	EntityCategory string  `json:"entity_category,omitempty"`
	Scale          float64 `json:"-"`
}

const tenths = 0.1

var sensorTable = []SensorDefinition{
	{Key: "homeserver_version", Name: "Homeserver version", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "homeserver_error", Name: "Homeserver error", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "homeserver_time", Name: "Time (UTC)", StateClass: StateClassMeasurement, DeviceClass: "timestamp", EntityCategory: CategoryDiagnostic},
	{Key: "homeserver_success", Name: "API success", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},

	{Key: "heater_id", Name: "Heater ID", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_busId", Name: "Bus ID", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_name", Name: "Name", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_connected", Name: "Connection state", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_signal", Name: "Signal state", StateClass: StateClassMeasurement, DeviceClass: "signal_strength", EntityCategory: CategoryDiagnostic},
	{Key: "heater_rssi", Name: "Radio signal strength", Unit: "dBm", StateClass: StateClassMeasurement, DeviceClass: "signal_strength", EntityCategory: CategoryDiagnostic},
	{Key: "heater_lqi", Name: "Link quality", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},

	{Key: "heater_status_setpoint", Name: "Outlet setpoint", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", Scale: tenths},
	{Key: "heater_status_tIn", Name: "Inlet temperature", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", Scale: tenths},
	{Key: "heater_status_tOut", Name: "Outlet temperature", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", Scale: tenths},
	{Key: "heater_status_tP1", Name: "Temperature preset 1", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_tP2", Name: "Temperature preset 2", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_tP3", Name: "Temperature preset 3", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_tP4", Name: "Temperature preset 4", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_flow", Name: "Current flow", Unit: "m³/h", StateClass: StateClassMeasurement},
	{Key: "heater_status_flowMax", Name: "Maximum flow", Unit: "m³/h", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_status_valvePos", Name: "Valve position", Unit: "%", StateClass: StateClassMeasurement},
	{Key: "heater_status_valveFlags", Name: "Valve flags", EntityCategory: CategoryDiagnostic},
	{Key: "heater_status_power", Name: "Power draw", Unit: "kW", StateClass: StateClassMeasurement, Scale: tenths},
	{Key: "heater_status_powerMax", Name: "Power draw max", Unit: "kW", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_power100", Name: "Rated power", Unit: "kW", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_status_error", Name: "Heater error", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},

	{Key: "heater_setup_swVersion", Name: "Software version", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "heater_setup_serialDevice", Name: "Device serial number", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "heater_setup_serialPowerUnit", Name: "Power unit serial number", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "heater_setup_flowMax", Name: "Flow limit (litres/minute)", Unit: "m³/h", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_setup_loadShedding", Name: "Load shedding", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_setup_scaldProtection", Name: "Scald protection temperature", Unit: "°C", StateClass: StateClassMeasurement, DeviceClass: "temperature", EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_setup_sound", Name: "Sound", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_setup_fcpAddr", Name: "Address", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_setup_powerCosts", Name: "Cost per kWh (cent)", Unit: "cent", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig},
	{Key: "heater_setup_powerMax", Name: "Power draw limit", Unit: "kW", StateClass: StateClassMeasurement, EntityCategory: CategoryConfig, Scale: tenths},
	{Key: "heater_setup_calValue", Name: "Internal calibration value", StateClass: StateClassMeasurement, EntityCategory: CategoryDiagnostic},
	{Key: "heater_setup_timerPowerOn", Name: "Heating time", Unit: "min", StateClass: StateClassMeasurement},
	{Key: "heater_setup_timerLifetime", Name: "Total operating time", Unit: "h", StateClass: StateClassTotalIncreasing},
	{Key: "heater_setup_timerStandby", Name: "Operating time since last power loss", Unit: "h", StateClass: StateClassTotalIncreasing},

	{Key: "number_of_watertaps", Name: "Water taps", StateClass: StateClassTotalIncreasing},
	{Key: "usage_time", Name: "Total usage time", Unit: "min", StateClass: StateClassTotalIncreasing},
	{Key: "consumption_energy", Name: "Total energy consumption", Unit: "kWh", StateClass: StateClassTotalIncreasing, DeviceClass: "energy"},
	{Key: "consumption_water", Name: "Total water consumption", Unit: "L", StateClass: StateClassTotalIncreasing},
}

var sensorIndex = func() map[string]int {
	idx := make(map[string]int, len(sensorTable))
	for i, s := range sensorTable {
		idx[s.Key] = i
	}
	return idx
}()

// Sensors returns a copy of the sensor table in display order.
func Sensors() []SensorDefinition {
	return slices.Clone(sensorTable)
}

// LookupSensor returns the definition for key.
func LookupSensor(key string) (SensorDefinition, bool) {
	i, ok := sensorIndex[key]
	if !ok {
		return SensorDefinition{}, false
	}
	return sensorTable[i], true
}
