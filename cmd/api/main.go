package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/mpp2mqtt/internal/adapter/actor"
	"github.com/berfenger/mpp2mqtt/internal/config"
	"github.com/berfenger/mpp2mqtt/internal/core/actor"
	"github.com/berfenger/mpp2mqtt/internal/core/port"
	"github.com/berfenger/mpp2mqtt/internal/core/service"
	"github.com/berfenger/mpp2mqtt/internal/metrics"
	"github.com/berfenger/mpp2mqtt/internal/server"
	"github.com/berfenger/mpp2mqtt/internal/util"
	"github.com/berfenger/mpp2mqtt/internal/util/actorutil"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	logger, err := util.NewLogger(*cfg)
	if err != nil {
		slog.Error("logger errors", "error", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.NewMetrics()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, deviceActorProvider(cfg, m, logger), mqttActorProvider(cfg, logger), m, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not start master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, m.Handler())
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => MPP2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("MPP2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("mpp2mqtt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Device.ReplayFile == "" {
		return nil, errors.New("config param device.replay_file is required: no serial transport is built in")
	}

	return &cfg, nil
}

func deviceActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.DeviceActorProvider {
	open := mppsolar.InstrumentedOpener(mppsolar.ReplayOpener(cfg.Device.ReplayFile), logger, m.ExecutorInstrument())
	opts := []service.Option{
		service.WithBaudRate(cfg.Device.BaudRate),
		service.WithLogger(logger),
	}
	if cfg.Device.LenientStatus {
		opts = append(opts, service.WithLenientStatus())
	}
	return func() *adactor.DeviceActor {
		return adactor.NewDeviceActor(func() (port.InverterService, error) {
			return service.NewAggregator(cfg.Device.Path, open, opts...)
		}, cfg.Device.CommandTimeout(), logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("device.baud_rate", mppsolar.DefaultBaudRate)
	viper.SetDefault("device.command_timeout_millis", 5000)
	viper.SetDefault("device.lenient_status", false)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "mpp2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("monitor.settings_cron", "0 0/15 * * * *")
	viper.SetDefault("monitor.publish_settings", true)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
