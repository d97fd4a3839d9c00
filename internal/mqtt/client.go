package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/mpp2mqtt/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

var (
	ErrInvalidCommandTopic = errors.New("invalid command topic")
	ErrNotAQuery           = errors.New("only query commands are accepted")
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("mpp2mqtt_%s", uuid.NewString()[:8]))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:        mqtt.NewClient(opts),
		cfg:           cfg.MQTT,
		commandRegexp: commandExtractor(cfg.MQTT.BaseTopic),
	}
}

type MQTTClient struct {
	client        mqtt.Client
	cfg           config.MQTTConfig
	commandRegexp *regexp.Regexp
}

// ParsedMQTTCommand is a device query received on the command topic.
type ParsedMQTTCommand struct {
	Command       string
	CorrelationId string
	Raw           bool
}

type commandPayload struct {
	CorrelationId string `json:"correlation_id"`
}

func (c *MQTTClient) baseTopic() string {
	return c.cfg.BaseTopic
}

func (c *MQTTClient) HADiscoveryTopic() string {
	return c.cfg.HADiscoveryTopic
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic())
}

func (c *MQTTClient) StatusStateTopic(key string) string {
	return fmt.Sprintf("%s/status/%s/state", c.baseTopic(), key)
}

func (c *MQTTClient) SettingStateTopic(key string) string {
	return fmt.Sprintf("%s/setting/%s/state", c.baseTopic(), key)
}

// SnapshotTopic is where a whole snapshot is published as JSON: <base>/status, <base>/settings.
func (c *MQTTClient) SnapshotTopic(snapshotId string) string {
	return fmt.Sprintf("%s/%s", c.baseTopic(), snapshotId)
}

func (c *MQTTClient) CommandTopic(command string) string {
	return fmt.Sprintf("%s/command/%s", c.baseTopic(), command)
}

func (c *MQTTClient) ResponseTopic(command string) string {
	return fmt.Sprintf("%s/response/%s", c.baseTopic(), command)
}

func (c *MQTTClient) ParseMQTTCommand(msg mqtt.Message) (*ParsedMQTTCommand, error) {
	return c.parseCommand(msg.Topic(), msg.Payload())
}

// parseCommand accepts <base>/command/<CMD> and <base>/command/<CMD>/raw.
// The payload is either empty, a JSON object with a correlation_id, or the
// correlation id itself.
func (c *MQTTClient) parseCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	matches := c.commandRegexp.FindStringSubmatch(topic)
	if len(matches) != 3 {
		return nil, ErrInvalidCommandTopic
	}
	command := strings.ToUpper(matches[1])
	if !strings.HasPrefix(command, "Q") {
		return nil, fmt.Errorf("%w: %s", ErrNotAQuery, command)
	}

	correlationId := strings.TrimSpace(string(payload))
	var p commandPayload
	if err := json.Unmarshal(payload, &p); err == nil {
		correlationId = p.CorrelationId
	}
	if correlationId == "" {
		correlationId = uuid.NewString()
	}

	return &ParsedMQTTCommand{
		Command:       command,
		CorrelationId: correlationId,
		Raw:           matches[2] != "",
	}, nil
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	token := c.client.Publish(topic, qos, retain, payload)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT publish timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	token := c.client.Subscribe(topic, qos, handler)
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT subscribe timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) SubscribeToCommandTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(c.commandSubscriptionTopic(), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	token := c.client.Connect()
	go func() {
		didTO := token.WaitTimeout(timeout)
		if !didTO {
			continuation(errors.New("MQTT connect timed out"))
		} else {
			continuation(token.Error())
		}
	}()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *MQTTClient) commandSubscriptionTopic() string {
	return fmt.Sprintf("%s/command/#", c.baseTopic())
}

func commandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/command/([a-zA-Z0-9]+)(/raw)?$", regexp.QuoteMeta(baseTopic)))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
