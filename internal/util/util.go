package util

import (
	"github.com/berfenger/mpp2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Device: config.DeviceConfig{
			Path:                 "/dev/ttyUSB0",
			BaudRate:             2400,
			CommandTimeoutMillis: 2000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "mpp2mqtt",
			HADiscoveryTopic: "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
			SettingsCron:       "0 0/15 * * * *",
			PublishSettings:    true,
		},
		Port: 8080,
	}
}
