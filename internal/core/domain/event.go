package domain

import "fmt"

const (
	SNAPSHOT_ID_STATUS   = "status"
	SNAPSHOT_ID_SETTINGS = "settings"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// StatusFieldUpdateEvent carries one status field, Id is the field key.
type StatusFieldUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
	Unit  string
}

// SettingUpdateEvent carries one settings field, Id is the field key.
type SettingUpdateEvent struct {
	SensorUpdateEventMixIn
	Value   string
	Default string
}

// SnapshotUpdateEvent carries a whole snapshot as JSON, Id is SNAPSHOT_ID_*.
type SnapshotUpdateEvent struct {
	SensorUpdateEventMixIn
	Payload string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

var (
	_ SensorUpdateEvent = StatusFieldUpdateEvent{}
	_ SensorUpdateEvent = SettingUpdateEvent{}
	_ SensorUpdateEvent = SnapshotUpdateEvent{}
	_ SensorUpdateEvent = BridgeStateUpdateEvent{}
)
