package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/config"
	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/service"
	"github.com/berfenger/mpp2mqtt/internal/util/actorutil"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	deviceActor        *actor.PID
	mqttActor          *actor.PID
	deviceActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int
	info               deviceInfo

	logger *zap.Logger
}

// deviceInfo collects the answers needed to describe the inverter.
type deviceInfo struct {
	serial   *domain.GetSerialNumberResponse
	status   *domain.GetFullStatusResponse
	settings *domain.GetSettingsResponse
}

func (i deviceInfo) complete() bool {
	return i.serial != nil && i.status != nil && i.settings != nil
}

func (i deviceInfo) err() error {
	return errors.Join(i.serial.GetResponseError(), i.status.GetResponseError(), i.settings.GetResponseError())
}

func NewHADiscoveryActor(config *config.Config, deviceActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		deviceActor: deviceActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check device and MQTT actor healthy
		state.healthyRecv = 0
		state.deviceActorHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_DEVICE,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_DEVICE:
				state.deviceActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if !state.deviceActorHealthy || !state.mqttActorHealthy {
				panic(errors.New("MQTT Actor or Device Actor are not healthy"))
			}
			state.requestDeviceInfo(ctx)
			state.behavior.Become(state.WaitingInfoReceive)
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) requestDeviceInfo(ctx actor.Context) {
	state.info = deviceInfo{}
	timeout := 3*state.config.Device.CommandTimeout() + time.Second
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetSerialNumberRequest{}, timeout), func(err error) any {
		return domain.GetSerialNumberResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	})
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetFullStatusRequest{}, timeout), func(err error) any {
		return domain.GetFullStatusResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	})
	actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetSettingsRequest{}, timeout), func(err error) any {
		return domain.GetSettingsResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	})
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSerialNumberResponse:
		state.info.serial = &msg
	case domain.GetFullStatusResponse:
		state.info.status = &msg
	case domain.GetSettingsResponse:
		state.info.settings = &msg
	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}
	if !state.info.complete() {
		return
	}
	if err := state.info.err(); err != nil {
		panic(err)
	}
	state.logger.Debug("hadiscovery@info: device info", zap.String("serial", state.info.serial.SerialNumber))

	sensors := DiscoverySensors(state.config.MQTT.BaseTopic, state.info.serial.SerialNumber, state.info.status.Status, state.info.settings.Settings)
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		ActorRequestMixIn: domain.ReplyToPID(ctx.Self()),
		Sensors:           sensors,
	})
	state.behavior.Become(state.Done)
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@done publish failed", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Info("hadiscovery@done discovery published")
		}
	}
}

// DiscoverySensors lists the bridge sensors followed by one sensor per status
// field and one per setting. Only the first inverter sensor carries the full
// device description.
func DiscoverySensors(baseTopic string, serialNumber string, status domain.StatusSnapshot, settings domain.SettingsSnapshot) []domain.GenericSensor {
	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors := domain.BridgeSensors(bridgeDevice)

	inverterDevice := domain.InverterDevice(serialNumber)
	inverterDevice.ViaDevice = bridgeDevice.Id

	var inverterSensors []domain.GenericSensor
	for _, name := range service.StatusFieldNames() {
		inverterSensors = append(inverterSensors, domain.StatusSensor(inverterDevice, name, status[mppsolar.FieldKey(name)].Unit))
	}
	for _, name := range service.SettingsFieldNames() {
		inverterSensors = append(inverterSensors, domain.SettingSensor(inverterDevice, name, settings[mppsolar.FieldKey(name)].Unit))
	}
	for i := range inverterSensors {
		if i > 0 {
			inverterSensors[i].Device = domain.IdDevice(inverterDevice)
		}
		sensors = append(sensors, inverterSensors[i])
	}
	return sensors
}
