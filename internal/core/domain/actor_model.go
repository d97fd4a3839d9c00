package domain

import (
	"errors"

	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_DEVICE       = "device"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetSerialNumberRequest struct {
	ActorRequestMixIn
}

type GetSerialNumberResponse struct {
	ActorResponseMixIn
	SerialNumber string
}

type GetFullStatusRequest struct {
	ActorRequestMixIn
}

type GetFullStatusResponse struct {
	ActorResponseMixIn
	Status StatusSnapshot
}

type GetSettingsRequest struct {
	ActorRequestMixIn
}

type GetSettingsResponse struct {
	ActorResponseMixIn
	Settings SettingsSnapshot
}

type GetKnownCommandsRequest struct {
	ActorRequestMixIn
}

type GetKnownCommandsResponse struct {
	ActorResponseMixIn
	Commands []string
}

type GetResponseMapRequest struct {
	ActorRequestMixIn
	Command string
}

type GetResponseMapResponse struct {
	ActorResponseMixIn
	Command string
	Fields  mppsolar.ResponseMap
}

type GetRawResponseRequest struct {
	ActorRequestMixIn
	Command string
}

type GetRawResponseResponse struct {
	ActorResponseMixIn
	Command string
	Raw     string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// DeviceRequest marks the requests served by the device actor.
type DeviceRequest interface {
	ActorRequest
	deviceRequest()
}

func (GetSerialNumberRequest) deviceRequest()  {}
func (GetFullStatusRequest) deviceRequest()    {}
func (GetSettingsRequest) deviceRequest()      {}
func (GetKnownCommandsRequest) deviceRequest() {}
func (GetResponseMapRequest) deviceRequest()   {}
func (GetRawResponseRequest) deviceRequest()   {}

// ensure interface compliance
var _ DeviceRequest = GetFullStatusRequest{}

// ErrDeviceTimeout is returned when the device did not answer a request in time.
var ErrDeviceTimeout = errors.New("device did not answer in time")

// CommandResponseRequest asks the MQTT actor to publish the answer to a
// command received on the command topic.
type CommandResponseRequest struct {
	ActorRequestMixIn
	CorrelationId string
	Command       string
	Fields        mppsolar.ResponseMap
	Raw           string
	Error         error
}
