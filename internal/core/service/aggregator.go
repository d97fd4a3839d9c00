package service

import (
	"errors"
	"fmt"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/internal/core/port"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"go.uber.org/zap"
)

const serialNumberFieldKey = "serial_number"

// ErrMissingDevice is returned by NewAggregator when no device path is given.
var ErrMissingDevice = errors.New("a serial device must be supplied, e.g. /dev/ttyUSB0")

// MissingFieldError reports a field absent from the responses of Commands.
type MissingFieldError struct {
	Key      string
	Commands []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q missing from %v responses", e.Key, e.Commands)
}

// Aggregator turns raw command responses into status and settings snapshots.
// It is not safe for concurrent use: every query drives the same device.
type Aggregator struct {
	executor      mppsolar.CommandExecutor
	logger        *zap.Logger
	lenientStatus bool

	serialNumber *string
}

// Option configures NewAggregator.
type Option func(*aggregatorOptions)

type aggregatorOptions struct {
	baudRate      int
	lenientStatus bool
	logger        *zap.Logger
}

// WithBaudRate sets the serial line speed passed to the opener. Values <= 0
// keep mppsolar.DefaultBaudRate.
func WithBaudRate(baudRate int) Option {
	return func(o *aggregatorOptions) {
		if baudRate > 0 {
			o.baudRate = baudRate
		}
	}
}

// WithLenientStatus makes FullStatus fill missing fields with empty strings
// instead of failing.
func WithLenientStatus() Option {
	return func(o *aggregatorOptions) {
		o.lenientStatus = true
	}
}

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *aggregatorOptions) {
		o.logger = logger
	}
}

// NewAggregator opens exactly one executor for device. Opener errors are
// returned unmodified.
func NewAggregator(device string, open mppsolar.Opener, opts ...Option) (*Aggregator, error) {
	if device == "" {
		return nil, ErrMissingDevice
	}

	o := aggregatorOptions{
		baudRate: mppsolar.DefaultBaudRate,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	executor, err := open(device, o.baudRate)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		executor:      executor,
		logger:        o.logger,
		lenientStatus: o.lenientStatus,
	}, nil
}

func (a *Aggregator) KnownCommands() []string {
	return a.executor.KnownCommands()
}

func (a *Aggregator) ResponseMap(command string) (mppsolar.ResponseMap, error) {
	resp, err := a.executor.Execute(command)
	if err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

func (a *Aggregator) RawResponse(command string) (string, error) {
	resp, err := a.executor.Execute(command)
	if err != nil {
		return "", err
	}
	return resp.Raw, nil
}

// SerialNumber queries the device once and returns the cached value afterwards.
// Errors, including a QID response without a serial number, are not cached.
func (a *Aggregator) SerialNumber() (string, error) {
	if a.serialNumber == nil {
		fields, err := a.ResponseMap(mppsolar.CommandDeviceSerialNumber)
		if err != nil {
			return "", err
		}
		serial, ok := fields.Lookup(serialNumberFieldKey)
		if !ok {
			return "", &MissingFieldError{Key: serialNumberFieldKey, Commands: []string{mppsolar.CommandDeviceSerialNumber}}
		}
		a.serialNumber = &serial.Value
		a.logger.Debug("aggregator: serial number cached", zap.String("serial_number", serial.Value))
	}
	return *a.serialNumber, nil
}

// FullStatus merges Q1 and QPIGS (QPIGS wins on collision) and projects the
// status field table.
func (a *Aggregator) FullStatus() (domain.StatusSnapshot, error) {
	commands := []string{mppsolar.CommandStatusExtended, mppsolar.CommandStatus}
	responses := make([]mppsolar.ResponseMap, 0, len(commands))
	for _, command := range commands {
		fields, err := a.ResponseMap(command)
		if err != nil {
			return nil, err
		}
		responses = append(responses, fields)
	}
	data := mppsolar.MergeResponseMaps(responses...)

	status := make(domain.StatusSnapshot, len(statusFieldNames))
	for _, name := range statusFieldNames {
		key := mppsolar.FieldKey(name)
		reading, ok := data.Lookup(key)
		if !ok && !a.lenientStatus {
			return nil, &MissingFieldError{Key: key, Commands: commands}
		}
		status[key] = domain.FieldValue{
			Value: reading.Value,
			Unit:  reading.Unit,
		}
	}
	return status, nil
}

// Settings projects QPIRI values and QDI defaults over the settings field
// table, then lets QFLAG override the values.
func (a *Aggregator) Settings() (domain.SettingsSnapshot, error) {
	defaultSettings, err := a.ResponseMap(mppsolar.CommandDefaultSettings)
	if err != nil {
		return nil, err
	}
	currentSettings, err := a.ResponseMap(mppsolar.CommandCurrentSettings)
	if err != nil {
		return nil, err
	}
	flagSettings, err := a.ResponseMap(mppsolar.CommandFlagSettings)
	if err != nil {
		return nil, err
	}

	settings := make(domain.SettingsSnapshot, len(settingsFieldNames))
	for _, name := range settingsFieldNames {
		key := mppsolar.FieldKey(name)
		settings[key] = domain.SettingValue{
			Value:   currentSettings.Value(key),
			Unit:    currentSettings.Unit(key),
			Default: defaultSettings.Value(key),
		}
	}

	for flag, reading := range flagSettings {
		key := mppsolar.FieldKey(flag)
		setting, ok := settings[key]
		if !ok {
			a.logger.Debug("aggregator: ignoring unknown flag", zap.String("flag", flag))
			continue
		}
		setting.Value = reading.Value
		settings[key] = setting
	}
	return settings, nil
}

func (a *Aggregator) Close() error {
	return a.executor.Close()
}

// ensure interface compliance
var _ port.InverterService = (*Aggregator)(nil)
