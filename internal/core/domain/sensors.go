package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	STATE_TOPIC_KIND_BRIDGE       = "bridge"
	STATE_TOPIC_KIND_STATUS       = "status"
	STATE_TOPIC_KIND_SETTING      = "setting"
	STATE_CLASS_MEASUREMENT       = "measurement"
	DEVICE_CLASS_APPARENT_POWER   = "apparent_power"
	DEVICE_CLASS_BATTERY          = "battery"
	DEVICE_CLASS_CURRENT          = "current"
	DEVICE_CLASS_FREQUENCY        = "frequency"
	DEVICE_CLASS_POWER            = "power"
	DEVICE_CLASS_TEMPERATURE      = "temperature"
	DEVICE_CLASS_VOLTAGE          = "voltage"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	ENTITY_CLASS_CONFIG           = "config"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
	INVERTER_MANUFACTURER         = "MPP Solar"
	INVERTER_MODEL                = "PIP-4048MS"
	SETTING_SENSOR_ID_PREFIX      = "setting_"
	BATTERY_CAPACITY_FIELD_KEY    = "battery_capacity"
	BRIDGE_DEVICE_ID_PREFIX       = "mpp2mqtt_bridge_"
	INVERTER_DEVICE_ID_PREFIX     = "mpp_inverter_"
	BRIDGE_DEVICE_MANUFACTURER    = "mpp2mqtt"
	BRIDGE_DEVICE_MODEL           = "mpp2mqtt"
	BRIDGE_CONNECTIVITY_SENSOR_NM = "Bridge state"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           BRIDGE_DEVICE_ID_PREFIX + md5HashShort(baseTopic),
		Manufacturer: BRIDGE_DEVICE_MANUFACTURER,
		Model:        BRIDGE_DEVICE_MODEL,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("mpp2mqtt %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(serialNumber string) Device {
	return Device{
		Id:           INVERTER_DEVICE_ID_PREFIX + md5HashShort(serialNumber),
		Manufacturer: INVERTER_MANUFACTURER,
		Model:        INVERTER_MODEL,
		Name:         fmt.Sprintf("%s %s %s", INVERTER_MANUFACTURER, INVERTER_MODEL, serialNumber),
	}
}

// IdDevice strips a device down to the fields HA needs to link an entity.
func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           BRIDGE_CONNECTIVITY_SENSOR_NM,
		StateTopicKind: STATE_TOPIC_KIND_BRIDGE,
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// StatusSensor describes one status field. Fields with a unit are measurements,
// fields without one are plain text sensors.
func StatusSensor(inverterDevice Device, name string, unit string) GenericSensor {
	key := mppsolar.FieldKey(name)
	sensor := GenericSensor{
		Device:            inverterDevice,
		Id:                key,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateTopicKind:    STATE_TOPIC_KIND_STATUS,
		UnitOfMeasurement: unit,
		UniqueId:          uniqueId(inverterDevice.Id, key),
	}
	if unit != "" {
		sensor.DeviceClass = deviceClassForUnit(key, unit)
		sensor.StateClass = STATE_CLASS_MEASUREMENT
	}
	return sensor
}

// SettingSensor describes one settings field as a config entity.
func SettingSensor(inverterDevice Device, name string, unit string) GenericSensor {
	key := mppsolar.FieldKey(name)
	id := SETTING_SENSOR_ID_PREFIX + key
	return GenericSensor{
		Device:            inverterDevice,
		Id:                key,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              name,
		StateTopicKind:    STATE_TOPIC_KIND_SETTING,
		UnitOfMeasurement: unit,
		EntityCategory:    ENTITY_CLASS_CONFIG,
		UniqueId:          uniqueId(inverterDevice.Id, id),
	}
}

func deviceClassForUnit(key string, unit string) string {
	switch unit {
	case "V":
		return DEVICE_CLASS_VOLTAGE
	case "A":
		return DEVICE_CLASS_CURRENT
	case "W":
		return DEVICE_CLASS_POWER
	case "VA":
		return DEVICE_CLASS_APPARENT_POWER
	case "Hz":
		return DEVICE_CLASS_FREQUENCY
	case "°C":
		return DEVICE_CLASS_TEMPERATURE
	case "%":
		if key == BATTERY_CAPACITY_FIELD_KEY {
			return DEVICE_CLASS_BATTERY
		}
	}
	return ""
}

func uniqueId(deviceId string, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[:8]
}
