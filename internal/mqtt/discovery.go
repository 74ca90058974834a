//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/light/lightnode_hall/light/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	PayloadOn           string   `json:"payload_on,omitempty"`
	PayloadOff          string   `json:"payload_off,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// topicName lowercases a node name and keeps only characters safe for
// MQTT topics.
func topicName(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// buildDiscovery generates the light, occupancy and presence entities.
func buildDiscovery(name, base string) []discoveryMsg {
	nodeID := "lightnode_" + topicName(name)
	avail := base + "/availability"
	stateTopic := base + "/state"
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "lightnode",
		Model:        "occupancy dimmer",
		Name:         name,
	}

	light := haDiscovery{
		Name:                name,
		UniqueID:            nodeID + "_light",
		StateTopic:          stateTopic,
		CommandTopic:        base + "/set",
		AvailabilityTopic:   avail,
		SupportedColorModes: []string{"brightness"},
		BrightnessScale:     99,
		Schema:              "json",
		Device:              haDev,
	}
	occupancy := haDiscovery{
		Name:              name + " Occupancy",
		UniqueID:          nodeID + "_occupancy",
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ 'ON' if value_json.occupancy else 'OFF' }}",
		DeviceClass:       "occupancy",
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device:            haDev,
	}
	presence := haDiscovery{
		Name:              name + " Presence Count",
		UniqueID:          nodeID + "_present_count",
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ value_json.present_count }}",
		StateClass:        "measurement",
		Device:            haDev,
	}

	return []discoveryMsg{
		{Topic: fmt.Sprintf("homeassistant/light/%s/light/config", nodeID), Payload: mustJSON(light)},
		{Topic: fmt.Sprintf("homeassistant/binary_sensor/%s/occupancy/config", nodeID), Payload: mustJSON(occupancy)},
		{Topic: fmt.Sprintf("homeassistant/sensor/%s/present_count/config", nodeID), Payload: mustJSON(presence)},
	}
}
