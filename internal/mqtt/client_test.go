package mqtt

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/util"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	cfg.MQTT.BaseTopic = "loremtopic"
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestCommandParse(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	cmd, err := c.parseCommand("loremtopic/command/qpigs", []byte(`{"correlation_id":"abc"}`))
	assert.NoError(err)
	assert.Equal("QPIGS", cmd.Command, "command is uppercased")
	assert.Equal("abc", cmd.CorrelationId)
	assert.False(cmd.Raw)

	cmd, err = c.parseCommand("loremtopic/command/QID/raw", []byte("req-1"))
	assert.NoError(err)
	assert.Equal("QID", cmd.Command)
	assert.Equal("req-1", cmd.CorrelationId)
	assert.True(cmd.Raw)
}

func TestCommandParseGeneratesCorrelationId(t *testing.T) {

	require := require.New(t)
	c := testClient()

	cmd, err := c.parseCommand("loremtopic/command/QPIRI", nil)
	require.NoError(err)
	_, err = uuid.Parse(cmd.CorrelationId)
	require.NoError(err)
}

func TestCommandParseFail(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	_, err := c.parseCommand("loremtopic/status/battery_voltage/state", nil)
	assert.ErrorIs(err, ErrInvalidCommandTopic)

	_, err = c.parseCommand("othertopic/command/QPIGS", nil)
	assert.ErrorIs(err, ErrInvalidCommandTopic)

	_, err = c.parseCommand("loremtopic/command/QPIGS/extra", nil)
	assert.ErrorIs(err, ErrInvalidCommandTopic)

	_, err = c.parseCommand("loremtopic/command/POP02", nil)
	assert.ErrorIs(err, ErrNotAQuery, "setter commands are rejected")
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)
	c := testClient()

	assert.Equal("loremtopic/bridge/state", c.BridgeStateTopic())
	assert.Equal("loremtopic/status/battery_voltage/state", c.StatusStateTopic("battery_voltage"))
	assert.Equal("loremtopic/setting/buzzer/state", c.SettingStateTopic("buzzer"))
	assert.Equal("loremtopic/status", c.SnapshotTopic(domain.SNAPSHOT_ID_STATUS))
	assert.Equal("loremtopic/command/QID", c.CommandTopic("QID"))
	assert.Equal("loremtopic/response/QID", c.ResponseTopic("QID"))
}

func TestCommandResponsePayload(t *testing.T) {

	require := require.New(t)

	resp := NewCommandResponse("abc", "QID", mppsolar.ResponseMap{
		"serial_number": {Value: "92931509101901"},
	}, "", nil)
	payload, err := resp.Payload()
	require.NoError(err)
	require.JSONEq(`{"correlation_id":"abc","command":"QID","fields":{"serial_number":{"value":"92931509101901","unit":""}}}`, payload)

	resp = NewCommandResponse("abc", "QMOD", nil, "", errors.New("unknown command"))
	payload, err = resp.Payload()
	require.NoError(err)
	require.JSONEq(`{"correlation_id":"abc","command":"QMOD","error":"unknown command"}`, payload)
}

func TestHADiscoveryMessages(t *testing.T) {

	require := require.New(t)
	c := testClient()

	inverter := domain.InverterDevice("92931509101901")
	sensor := domain.StatusSensor(inverter, "Battery Voltage", "V")
	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	require.Equal("loremtopic/status/battery_voltage/state", msg.StateTopic)
	require.Equal("loremtopic/bridge/state", msg.AvTopic)
	require.Equal(domain.DEVICE_CLASS_VOLTAGE, msg.DeviceClass)
	require.Equal("V", msg.UnitOfMeasurement)
	require.Equal([]string{inverter.Id}, msg.Device.Id)
	require.Equal("homeassistant/sensor/"+inverter.Id+"/"+sensor.UniqueId+"/config",
		HADiscoverySensorTopic("homeassistant", sensor))

	setting := domain.SettingSensor(inverter, "Buzzer", "")
	msg = GenericSensorToHADiscoveryMessage(c, setting)
	require.Equal("loremtopic/setting/buzzer/state", msg.StateTopic)
	require.Equal(domain.ENTITY_CLASS_CONFIG, msg.EntityCategory)

	bridge := domain.BridgeSensors(domain.BridgeDevice("loremtopic"))[0]
	msg = GenericSensorToHADiscoveryMessage(c, bridge)
	require.Equal("loremtopic/bridge/state", msg.StateTopic)
	require.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn)
	require.Empty(msg.AvTopic)

	b, err := json.Marshal(msg)
	require.NoError(err)
	require.Contains(string(b), `"platform":"mqtt"`)
}
