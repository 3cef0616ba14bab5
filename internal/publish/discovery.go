package publish

import (
	"encoding/json"

	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/mqtt"
)

// discoveryComponent is the Home Assistant component every sensor uses.
const discoveryComponent = "sensor"

// discoveryConfig is a Home Assistant MQTT discovery payload for one sensor.
type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template"`
	AvailabilityTopic string          `json:"availability_topic"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	EntityCategory    string          `json:"entity_category,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers      []string `json:"identifiers"`
	Name             string   `json:"name"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	ConfigurationURL string   `json:"configuration_url"`
}

// discoveryMessage is one retained discovery config ready to publish.
type discoveryMessage struct {
	topic   string
	payload []byte
}

// buildDiscovery returns the discovery configs of every sensor of d.
func buildDiscovery(topics mqtt.Topics, d device.Device) ([]discoveryMessage, error) {
	dev := discoveryDevice{
		Identifiers:      []string{d.ID},
		Name:             d.Name,
		Manufacturer:     device.Manufacturer,
		Model:            d.Model(),
		ConfigurationURL: d.ConfigurationURL(),
	}
	if dev.Name == "" {
		dev.Name = d.ID
	}

	sensors := homeserver.Sensors()
	msgs := make([]discoveryMessage, 0, len(sensors))
	for _, s := range sensors {
		cfg := discoveryConfig{
			Name:              s.Name,
			UniqueID:          d.UniqueID(s.Key),
			ObjectID:          "clagehomeserver_" + d.ID + "_" + s.Key,
			StateTopic:        topics.State(d.ID),
			ValueTemplate:     "{{ value_json." + s.Key + " }}",
			AvailabilityTopic: topics.Availability(d.ID),
			Unit:              s.Unit,
			DeviceClass:       s.DeviceClass,
			StateClass:        s.StateClass,
			EntityCategory:    s.EntityCategory,
			Device:            dev,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, discoveryMessage{
			topic:   topics.Discovery(discoveryComponent, d.ID, s.Key),
			payload: payload,
		})
	}
	return msgs, nil
}
