package actor

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/mpp2mqtt/internal/adapter/actor"
	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/service"
	"github.com/berfenger/mpp2mqtt/internal/mqtt"
	"github.com/berfenger/mpp2mqtt/internal/util"
	"github.com/berfenger/mpp2mqtt/internal/util/actorutil"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDiscoverySensors(t *testing.T) {

	assert := assert.New(t)

	status := domain.StatusSnapshot{"battery_voltage": {Value: "57.50", Unit: "V"}}
	settings := domain.SettingsSnapshot{"max_charging_current": {Value: "60", Unit: "A", Default: "60"}}
	sensors := DiscoverySensors("mpp2mqtt", "92931509101901", status, settings)

	assert.Len(sensors, 1+len(service.StatusFieldNames())+len(service.SettingsFieldNames()))
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)

	inverter := domain.InverterDevice("92931509101901")
	first := sensors[1]
	assert.Equal(inverter.Id, first.Device.Id)
	assert.Equal(domain.BridgeDevice("mpp2mqtt").Id, first.Device.ViaDevice)
	assert.Equal(domain.INVERTER_MANUFACTURER, first.Device.Manufacturer)
	for _, s := range sensors[2:] {
		assert.Equal(domain.IdDevice(inverter), s.Device, "only the first sensor describes the device")
	}

	uniqueIds := map[string]bool{}
	for _, s := range sensors {
		assert.False(uniqueIds[s.UniqueId], "duplicate unique id %s", s.UniqueId)
		uniqueIds[s.UniqueId] = true

		switch {
		case s.StateTopicKind == domain.STATE_TOPIC_KIND_STATUS && s.Id == "battery_voltage":
			assert.Equal("V", s.UnitOfMeasurement)
		case s.StateTopicKind == domain.STATE_TOPIC_KIND_SETTING && s.Id == "max_charging_current":
			assert.Equal("A", s.UnitOfMeasurement)
		}
	}
}

func TestHADiscoveryActorPublishesConfigs(t *testing.T) {

	require := require.New(t)

	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true
	exec := mppsolar.CreateTestExecutor()

	devicePID := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return testDeviceActorProvider(exec, logger)() }))
	sink := make(chan adactor.PublishedMessage, 256)
	mqttPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTestMQTTActor(&cfg, nil, sink, logger)
	}))

	discPID := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, devicePID, mqttPID, logger)
	}))
	defer context.Stop(discPID)

	var configs []adactor.PublishedMessage
	deadline := time.After(5 * time.Second)
	expected := 1 + len(service.StatusFieldNames()) + len(service.SettingsFieldNames())
	for len(configs) < expected {
		select {
		case msg := <-sink:
			if strings.HasPrefix(msg.Topic, cfg.MQTT.HADiscoveryTopic+"/") {
				configs = append(configs, msg)
			}
		case <-deadline:
			require.FailNow("discovery not published", "got %d of %d configs", len(configs), expected)
		}
	}

	require.Equal(1, exec.Calls(mppsolar.CommandDeviceSerialNumber))
	for _, msg := range configs {
		require.True(msg.Retain)
		var disc mqtt.HADiscoveryConfig
		require.NoError(json.Unmarshal([]byte(msg.Payload), &disc))
		require.NotEmpty(disc.UniqueId)
		require.True(strings.HasPrefix(disc.StateTopic, cfg.MQTT.BaseTopic+"/"))
	}
}
