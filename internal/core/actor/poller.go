package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/config"
	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/events"
	"github.com/berfenger/mpp2mqtt/internal/core/port"
	"github.com/berfenger/mpp2mqtt/internal/metrics"
	. "github.com/berfenger/mpp2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const settingsJobName = "mpp2mqtt-settings-refresh"

// PollerActor turns periodic status and settings snapshots into update
// events. Status is polled on a fixed interval, settings at start and on a
// cron schedule.
type PollerActor struct {
	behavior       actor.Behavior
	stash          *Stash
	scheduler      *scheduler.TimerScheduler
	cron           quartz.Scheduler
	cancelCron     context.CancelFunc
	deviceActor    *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	observer       port.PollObserver
	requestTimeout time.Duration

	logger *zap.Logger
}

type statusTick struct {
}

type settingsTick struct {
}

func NewPollerActor(config *config.Config, deviceActor *actor.PID, eventStream *eventstream.EventStream, observer port.PollObserver, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:         config,
		deviceActor:    deviceActor,
		behavior:       actor.NewBehavior(),
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream:    eventStream,
		observer:       observer,
		requestTimeout: 3*config.Device.CommandTimeout() + time.Second,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			ctx.Send(ctx.Self(), statusTick{})
		}
		if state.config.MonitorConfig.PublishSettings {
			ctx.Send(ctx.Self(), settingsTick{})
			if err := state.startSettingsCron(ctx); err != nil {
				state.logger.Error("poller@starting could not schedule settings refresh", zap.Error(err))
				panic(err)
			}
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stopSettingsCron()
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		state.respondHealth(ctx, "idle")
	case statusTick:
		state.logger.Debug("poller@default status tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetFullStatusRequest{}, state.requestTimeout), func(err error) any {
			return domain.GetFullStatusResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		// schedule next tick
		state.scheduler.SendOnce(state.config.MonitorConfig.PollInterval(), ctx.Self(), statusTick{})
		state.behavior.BecomeStacked(state.WaitingStatusReceive)
	case settingsTick:
		state.logger.Debug("poller@default settings tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.deviceActor, domain.GetSettingsRequest{}, state.requestTimeout), func(err error) any {
			return domain.GetSettingsResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.behavior.BecomeStacked(state.WaitingSettingsReceive)
	case *actor.Stopping:
		state.stopSettingsCron()
	case *actor.Restarting:
		state.stopSettingsCron()
	default:
		state.logger.Debug("poller@default: ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) WaitingStatusReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetFullStatusResponse:
		state.recordPoll(metrics.POLL_KIND_STATUS, msg.GetResponseError())
		if msg.HasResponseError() {
			state.logger.Error("poller@waitingStatus GetFullStatusResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("poller@waitingStatus GetFullStatusResponse")
			state.publish(events.StatusToUpdateEvents(msg.Status))
			state.publishSnapshot(events.StatusSnapshotEvent(msg.Status))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "polling")
	default:
		state.logger.Debug("poller@waitingStatus: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingSettingsReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetSettingsResponse:
		state.recordPoll(metrics.POLL_KIND_SETTINGS, msg.GetResponseError())
		if msg.HasResponseError() {
			state.logger.Error("poller@waitingSettings GetSettingsResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("poller@waitingSettings GetSettingsResponse")
			state.publish(events.SettingsToUpdateEvents(msg.Settings))
			state.publishSnapshot(events.SettingsSnapshotEvent(msg.Settings))
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.respondHealth(ctx, "polling")
	default:
		state.logger.Debug("poller@waitingSettings: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) respondHealth(ctx actor.Context, current string) {
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_POLLER,
		Healthy: true,
		State:   current,
	})
}

func (state *PollerActor) publish(evs []domain.SensorUpdateEvent) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) publishSnapshot(ev domain.SensorUpdateEvent, err error) {
	if err != nil {
		state.logger.Error("poller: could not render snapshot", zap.Error(err))
		return
	}
	state.eventStream.Publish(ev)
}

func (state *PollerActor) recordPoll(kind string, err error) {
	if state.observer != nil {
		state.observer.RecordPoll(kind, err)
	}
}

func (state *PollerActor) startSettingsCron(ctx actor.Context) error {
	trigger, err := quartz.NewCronTrigger(state.config.MonitorConfig.SettingsCron)
	if err != nil {
		return err
	}
	sched := quartz.NewStdScheduler()

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	refresh := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		root.Send(self, settingsTick{})
		return true, nil
	})

	cronCtx, cancel := context.WithCancel(context.Background())
	sched.Start(cronCtx)
	if err := sched.ScheduleJob(quartz.NewJobDetail(refresh, quartz.NewJobKey(settingsJobName)), trigger); err != nil {
		cancel()
		return err
	}
	state.cron = sched
	state.cancelCron = cancel
	return nil
}

func (state *PollerActor) stopSettingsCron() {
	if state.cron == nil {
		return
	}
	state.cron.Stop()
	state.cancelCron()
	state.cron = nil
	state.cancelCron = nil
}
