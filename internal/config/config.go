package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	LogFile       string        `mapstructure:"log_file"`
	Device        DeviceConfig  `mapstructure:"device"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type DeviceConfig struct {
	Path                 string
	BaudRate             int    `mapstructure:"baud_rate"`
	ReplayFile           string `mapstructure:"replay_file"`
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
	LenientStatus        bool   `mapstructure:"lenient_status"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	SettingsCron       string `mapstructure:"settings_cron"`
	PublishSettings    bool   `mapstructure:"publish_settings"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c DeviceConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMillis) * time.Millisecond
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// Validate checks bounds and normalizes the MQTT topics in place.
func (c *Config) Validate() error {
	if c.Device.Path == "" {
		return errors.New("config param device.path is required")
	}
	if c.Device.BaudRate < 0 {
		return errors.New("config param device.baud_rate should be >= 0")
	}
	if c.Device.CommandTimeoutMillis < 100 {
		return errors.New("config param device.command_timeout_millis should be >= 100")
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(c.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.HADiscoveryTopic = hadBaseTopic

	if c.MonitorConfig.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if c.MonitorConfig.PublishSettings {
		if _, err := quartz.NewCronTrigger(c.MonitorConfig.SettingsCron); err != nil {
			return fmt.Errorf("config param monitor.settings_cron is not a valid cron expression: %w", err)
		}
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
