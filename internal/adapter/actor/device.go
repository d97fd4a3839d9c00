package actor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/port"
	"github.com/berfenger/mpp2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// DeviceActor owns the inverter service. One request reaches the device at a
// time: others are stashed until the running one answers or times out.
type DeviceActor struct {
	behavior       actor.Behavior
	stash          *actorutil.Stash
	provider       port.InverterServiceProvider
	service        port.InverterService
	deviceLock     *sync.Mutex
	commandTimeout time.Duration
	logger         *zap.Logger
}

var errDeviceClosed = errors.New("device is closed")

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewDeviceActor(provider port.InverterServiceProvider, commandTimeout time.Duration, logger *zap.Logger) *DeviceActor {
	act := &DeviceActor{
		provider:       provider,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		deviceLock:     &sync.Mutex{},
		commandTimeout: commandTimeout,
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_DEVICE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *DeviceActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *DeviceActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("device@starting started")
		service, err := state.provider()
		if err != nil {
			state.logger.Error("device@starting could not open device", zap.Error(err))
			panic(err)
		}
		state.service = service
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("device@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("device@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DEVICE,
			Healthy: true,
			State:   "idle",
		})
	case domain.DeviceRequest:
		state.logger.Debug("device@default: DeviceRequest", zap.String("type", fmt.Sprintf("%T", msg)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.NewBackgroundTaskNoError(ctx, func() *backgroundTaskResult {
			return &backgroundTaskResult{
				message: state.execute(msg),
				replyTo: sender,
			}
		}).WithLock(state.deviceLock).WithTimeout(state.commandTimeout).Recover(func(err error) backgroundTaskResult {
			state.logger.Warn("device@default request failed", zap.String("type", fmt.Sprintf("%T", msg)), zap.Error(err))
			return backgroundTaskResult{
				message: errorResponse(msg, fmt.Errorf("%w: %v", domain.ErrDeviceTimeout, err)),
				replyTo: sender,
			}
		}).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingDevice)
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("device@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *DeviceActor) WaitingDevice(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("device@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_DEVICE,
			Healthy: true,
			State:   "busy",
		})
	case *actor.Restarting:
		state.close()
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("device@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *DeviceActor) execute(req domain.DeviceRequest) domain.ActorResponse {
	srv := state.service
	if srv == nil {
		return errorResponse(req, errDeviceClosed)
	}
	switch msg := req.(type) {
	case domain.GetSerialNumberRequest:
		serial, err := srv.SerialNumber()
		return domain.GetSerialNumberResponse{ActorResponseMixIn: domain.ErrorResponse(err), SerialNumber: serial}
	case domain.GetFullStatusRequest:
		status, err := srv.FullStatus()
		return domain.GetFullStatusResponse{ActorResponseMixIn: domain.ErrorResponse(err), Status: status}
	case domain.GetSettingsRequest:
		settings, err := srv.Settings()
		return domain.GetSettingsResponse{ActorResponseMixIn: domain.ErrorResponse(err), Settings: settings}
	case domain.GetKnownCommandsRequest:
		return domain.GetKnownCommandsResponse{Commands: srv.KnownCommands()}
	case domain.GetResponseMapRequest:
		fields, err := srv.ResponseMap(msg.Command)
		return domain.GetResponseMapResponse{ActorResponseMixIn: domain.ErrorResponse(err), Command: msg.Command, Fields: fields}
	case domain.GetRawResponseRequest:
		raw, err := srv.RawResponse(msg.Command)
		return domain.GetRawResponseResponse{ActorResponseMixIn: domain.ErrorResponse(err), Command: msg.Command, Raw: raw}
	}
	return errorResponse(req, fmt.Errorf("unsupported device request %T", req))
}

func (state *DeviceActor) close() {
	if state.service == nil {
		return
	}
	state.deviceLock.Lock()
	defer state.deviceLock.Unlock()
	if err := state.service.Close(); err != nil {
		state.logger.Warn("device: close failed", zap.Error(err))
	}
	state.service = nil
}

func errorResponse(req domain.DeviceRequest, err error) domain.ActorResponse {
	mixin := domain.ErrorResponse(err)
	switch msg := req.(type) {
	case domain.GetSerialNumberRequest:
		return domain.GetSerialNumberResponse{ActorResponseMixIn: mixin}
	case domain.GetFullStatusRequest:
		return domain.GetFullStatusResponse{ActorResponseMixIn: mixin}
	case domain.GetSettingsRequest:
		return domain.GetSettingsResponse{ActorResponseMixIn: mixin}
	case domain.GetKnownCommandsRequest:
		return domain.GetKnownCommandsResponse{ActorResponseMixIn: mixin}
	case domain.GetResponseMapRequest:
		return domain.GetResponseMapResponse{ActorResponseMixIn: mixin, Command: msg.Command}
	case domain.GetRawResponseRequest:
		return domain.GetRawResponseResponse{ActorResponseMixIn: mixin, Command: msg.Command}
	}
	return domain.ErrorResponse(errors.Join(err, fmt.Errorf("unsupported device request %T", req)))
}
