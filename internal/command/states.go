package command

import (
	"cmp"
	"slices"
	"strings"

	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// FieldReader is the read surface of the state store.
// *coordinator.Store satisfies it.
type FieldReader interface {
	Field(deviceID, field string) (any, bool)
}

// DeviceLister lists registered device ids.
type DeviceLister interface {
	IDs() []string
}

// EntityStates resolves sensor entity ids against the state store.
//
// Entity ids have the form sensor.clagehomeserver_<device>_<field> and are
// matched case-insensitively.
type EntityStates struct {
	devices DeviceLister
	fields  FieldReader
}

// NewEntityStates creates a StateReader over devices and their stored fields.
func NewEntityStates(devices DeviceLister, fields FieldReader) *EntityStates {
	return &EntityStates{devices: devices, fields: fields}
}

// EntityValue returns the current value behind entityID.
func (e *EntityStates) EntityValue(entityID string) (any, bool) {
	deviceID, field, ok := e.split(entityID)
	if !ok {
		return nil, false
	}
	return e.fields.Field(deviceID, field)
}

// split finds the device and sensor key an entity id refers to. Device ids
// may contain underscores, so the longest registered id that prefixes the
// object part wins.
func (e *EntityStates) split(entityID string) (deviceID, field string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(entityID))
	rest, found := strings.CutPrefix(lower, device.EntityPrefix)
	if !found {
		return "", "", false
	}

	ids := e.devices.IDs()
	slices.SortFunc(ids, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	for _, id := range ids {
		candidate, found := strings.CutPrefix(rest, id+"_")
		if !found || candidate == "" {
			continue
		}
		return id, canonicalField(candidate), true
	}
	return "", "", false
}

// canonicalField restores the case of a known sensor key.
func canonicalField(lower string) string {
	for _, s := range homeserver.Sensors() {
		if strings.EqualFold(s.Key, lower) {
			return s.Key
		}
	}
	return lower
}
