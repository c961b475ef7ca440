package bridge

import (
	"fmt"
	"strings"

	"github.com/joshp123/godaikin/internal/cloud"
)

// topicSet builds every topic the bridge speaks. Device topics live under
// the bridge prefix; discovery configs live under the Home Assistant
// discovery prefix.
type topicSet struct {
	prefix    string
	discovery string
}

func (t topicSet) bridgeAvailability() string {
	return t.prefix + "/bridge/availability"
}

func (t topicSet) deviceAvailability(id cloud.DeviceID) string {
	return fmt.Sprintf("%s/%s/availability", t.prefix, id)
}

// status carries the climate state JSON the discovery templates read.
func (t topicSet) status(id cloud.DeviceID) string {
	return fmt.Sprintf("%s/%s/status", t.prefix, id)
}

// sensor carries the telemetry JSON for the sensor entities.
func (t topicSet) sensor(id cloud.DeviceID) string {
	return fmt.Sprintf("%s/%s/sensor", t.prefix, id)
}

func (t topicSet) command(id cloud.DeviceID, what string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.prefix, id, what)
}

func (t topicSet) switchState(id cloud.DeviceID, what string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.prefix, id, what)
}

func (t topicSet) climateConfig(id cloud.DeviceID) string {
	return fmt.Sprintf("%s/climate/%s/config", t.discovery, id)
}

func (t topicSet) sensorConfig(id cloud.DeviceID, name string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", t.discovery, id, name)
}

func (t topicSet) switchConfig(id cloud.DeviceID, name string) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", t.discovery, id, name)
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
