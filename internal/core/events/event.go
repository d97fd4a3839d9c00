package events

import (
	"encoding/json"
	"maps"
	"slices"

	. "github.com/berfenger/mpp2mqtt/internal/core/domain"
)

func StatusToUpdateEvents(status StatusSnapshot) []SensorUpdateEvent {
	var events []SensorUpdateEvent
	for _, key := range slices.Sorted(maps.Keys(status)) {
		field := status[key]
		events = append(events, StatusFieldUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: key,
			},
			Value: field.Value,
			Unit:  field.Unit,
		})
	}
	return events
}

func SettingsToUpdateEvents(settings SettingsSnapshot) []SensorUpdateEvent {
	var events []SensorUpdateEvent
	for _, key := range slices.Sorted(maps.Keys(settings)) {
		setting := settings[key]
		events = append(events, SettingUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: key,
			},
			Value:   setting.Value,
			Default: setting.Default,
		})
	}
	return events
}

// StatusSnapshotEvent renders the whole status as a single JSON document.
func StatusSnapshotEvent(status StatusSnapshot) (SensorUpdateEvent, error) {
	return snapshotEvent(SNAPSHOT_ID_STATUS, status)
}

// SettingsSnapshotEvent renders all the settings as a single JSON document.
func SettingsSnapshotEvent(settings SettingsSnapshot) (SensorUpdateEvent, error) {
	return snapshotEvent(SNAPSHOT_ID_SETTINGS, settings)
}

func snapshotEvent(id string, snapshot any) (SensorUpdateEvent, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return SnapshotUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Payload: string(payload),
	}, nil
}

func BridgeStateUpdateEvents(online bool) SensorUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
