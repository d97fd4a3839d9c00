package service

import (
	"errors"
	"maps"
	"testing"

	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDevice = "/dev/ttyUSB0"

func newTestAggregator(t *testing.T, opts ...Option) (*Aggregator, *mppsolar.TestExecutor) {
	exec := mppsolar.CreateTestExecutor()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	agg, err := NewAggregator(testDevice, exec.Opener(), opts...)
	require.NoError(t, err)
	return agg, exec
}

func TestNewAggregatorRequiresDevice(t *testing.T) {

	require := require.New(t)

	opened := 0
	open := func(device string, baudRate int) (mppsolar.CommandExecutor, error) {
		opened++
		return mppsolar.CreateTestExecutor(), nil
	}

	agg, err := NewAggregator("", open)
	require.Nil(agg)
	require.ErrorIs(err, ErrMissingDevice)
	require.Equal(0, opened, "opener must not run without a device")
}

func TestNewAggregatorBaudRate(t *testing.T) {

	assert := assert.New(t)

	exec := mppsolar.CreateTestExecutor()
	_, err := NewAggregator(testDevice, exec.Opener())
	assert.NoError(err)
	assert.Equal(testDevice, exec.Device)
	assert.Equal(mppsolar.DefaultBaudRate, exec.BaudRate)

	_, err = NewAggregator(testDevice, exec.Opener(), WithBaudRate(9600))
	assert.NoError(err)
	assert.Equal(9600, exec.BaudRate)

	_, err = NewAggregator(testDevice, exec.Opener(), WithBaudRate(0))
	assert.NoError(err)
	assert.Equal(mppsolar.DefaultBaudRate, exec.BaudRate)
}

func TestNewAggregatorOpenerError(t *testing.T) {

	openErr := errors.New("no such device")
	open := func(device string, baudRate int) (mppsolar.CommandExecutor, error) {
		return nil, openErr
	}

	agg, err := NewAggregator(testDevice, open)
	assert.Nil(t, agg)
	assert.Equal(t, openErr, err)
}

func TestSerialNumberIsCached(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	for range 3 {
		serial, err := agg.SerialNumber()
		require.NoError(err)
		require.Equal("92931509101901", serial)
	}
	require.Equal(1, exec.Calls(mppsolar.CommandDeviceSerialNumber))
}

func TestSerialNumberFailureIsNotCached(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	exec.SetError(mppsolar.CommandDeviceSerialNumber, errors.New("timeout"))
	_, err := agg.SerialNumber()
	require.Error(err)

	exec.SetResponse(mppsolar.CommandDeviceSerialNumber, mppsolar.ResponseMap{
		"serial_number": {Value: "123"},
	})
	serial, err := agg.SerialNumber()
	require.NoError(err)
	require.Equal("123", serial)
	require.Equal(2, exec.Calls(mppsolar.CommandDeviceSerialNumber))
}

func TestSerialNumberMissingKey(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	exec.SetResponse(mppsolar.CommandDeviceSerialNumber, mppsolar.ResponseMap{})
	serial, err := agg.SerialNumber()
	require.Equal("", serial)
	var missing *MissingFieldError
	require.ErrorAs(err, &missing)
	require.Equal("serial_number", missing.Key)
	require.Equal([]string{mppsolar.CommandDeviceSerialNumber}, missing.Commands)

	// nothing cached, the next call asks again
	exec.SetResponse(mppsolar.CommandDeviceSerialNumber, mppsolar.ResponseMap{
		"serial_number": {Value: "123"},
	})
	serial, err = agg.SerialNumber()
	require.NoError(err)
	require.Equal("123", serial)
	require.Equal(2, exec.Calls(mppsolar.CommandDeviceSerialNumber))
}

func TestFullStatus(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	status, err := agg.FullStatus()
	require.NoError(err)
	require.Len(status, len(statusFieldNames))

	for _, name := range statusFieldNames {
		require.Contains(status, mppsolar.FieldKey(name))
	}
	require.NotContains(status, "time_until_the_end_of_float_charging", "fields outside the table must be dropped")

	require.Equal("57.50", status["battery_voltage"].Value)
	require.Equal("V", status["battery_voltage"].Unit)
	require.Equal("bulk stage", status["inverter_charge_status"].Value)
	require.Equal("", status["inverter_charge_status"].Unit)

	require.Equal(1, exec.Calls(mppsolar.CommandStatusExtended))
	require.Equal(1, exec.Calls(mppsolar.CommandStatus))
}

func TestFullStatusLaterCommandWins(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	q1, err := agg.ResponseMap(mppsolar.CommandStatusExtended)
	require.NoError(err)
	q1["battery_voltage"] = mppsolar.Reading{Value: "12.00", Unit: "V"}
	exec.SetResponse(mppsolar.CommandStatusExtended, q1)

	status, err := agg.FullStatus()
	require.NoError(err)
	require.Equal("57.50", status["battery_voltage"].Value)
}

func TestFullStatusMissingField(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	qpigs, err := agg.ResponseMap(mppsolar.CommandStatus)
	require.NoError(err)
	delete(qpigs, "bus_voltage")
	exec.SetResponse(mppsolar.CommandStatus, qpigs)

	_, err = agg.FullStatus()
	var missing *MissingFieldError
	require.ErrorAs(err, &missing)
	require.Equal("bus_voltage", missing.Key)
}

func TestFullStatusLenient(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t, WithLenientStatus())

	qpigs, err := agg.ResponseMap(mppsolar.CommandStatus)
	require.NoError(err)
	delete(qpigs, "bus_voltage")
	exec.SetResponse(mppsolar.CommandStatus, qpigs)

	status, err := agg.FullStatus()
	require.NoError(err)
	require.Len(status, len(statusFieldNames))
	require.Equal("", status["bus_voltage"].Value)
	require.Equal("", status["bus_voltage"].Unit)
}

func TestFullStatusCommandError(t *testing.T) {

	assert := assert.New(t)
	agg, exec := newTestAggregator(t)

	cmdErr := errors.New("crc mismatch")
	exec.SetError(mppsolar.CommandStatusExtended, cmdErr)

	status, err := agg.FullStatus()
	assert.Nil(status)
	assert.ErrorIs(err, cmdErr)
	assert.Equal(0, exec.Calls(mppsolar.CommandStatus), "QPIGS must not run after Q1 failed")
}

func TestSettings(t *testing.T) {

	require := require.New(t)
	agg, _ := newTestAggregator(t)

	settings, err := agg.Settings()
	require.NoError(err)
	require.Len(settings, len(settingsFieldNames))

	bulk := settings["battery_bulk_charge_voltage"]
	require.Equal("57.6", bulk.Value)
	require.Equal("V", bulk.Unit)
	require.Equal("56.4", bulk.Default)

	units := settings["max_parallel_units"]
	require.Equal("9", units.Value)
	require.Equal("units", units.Unit)
	require.Equal("", units.Default)

	// flags override current values, never defaults
	buzzer := settings["buzzer"]
	require.Equal("disabled", buzzer.Value)
	require.Equal("", buzzer.Unit)
	require.Equal("enabled", buzzer.Default)

	bypass := settings["overload_bypass"]
	require.Equal("enabled", bypass.Value)
	require.Equal("disabled", bypass.Default)

	require.NotContains(settings, "topology")
}

func TestSettingsIsRepeatable(t *testing.T) {

	require := require.New(t)
	agg, _ := newTestAggregator(t)

	first, err := agg.Settings()
	require.NoError(err)
	second, err := agg.Settings()
	require.NoError(err)
	require.Equal(first, second)
}

func TestSettingsFlagOverridesValueOnly(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	exec.SetResponse(mppsolar.CommandFlagSettings, mppsolar.ResponseMap{
		"battery_bulk_charge_voltage": {Value: "X", Unit: "Z"},
	})

	settings, err := agg.Settings()
	require.NoError(err)
	require.Equal(domain.SettingValue{Value: "X", Unit: "V", Default: "56.4"}, settings["battery_bulk_charge_voltage"])
}

func TestSettingsMissingCurrentValue(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	current, err := agg.ResponseMap(mppsolar.CommandCurrentSettings)
	require.NoError(err)
	current = maps.Clone(current)
	delete(current, "battery_type")
	exec.SetResponse(mppsolar.CommandCurrentSettings, current)

	settings, err := agg.Settings()
	require.NoError(err)
	require.Len(settings, len(settingsFieldNames))
	require.Equal(domain.SettingValue{Value: "", Unit: "", Default: "AGM"}, settings["battery_type"])
}

func TestSettingsFlagKeysAreNormalized(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	exec.SetResponse(mppsolar.CommandFlagSettings, mppsolar.ResponseMap{
		"Power Saving":     {Value: "enabled"},
		"Unknown Flag":     {Value: "enabled"},
		"lcd_backlight":    {Value: "disabled"},
		"Overload Restart": {Value: "disabled"},
	})

	settings, err := agg.Settings()
	require.NoError(err)
	require.Len(settings, len(settingsFieldNames))
	require.Equal("enabled", settings["power_saving"].Value)
	require.Equal("disabled", settings["lcd_backlight"].Value)
	require.Equal("disabled", settings["overload_restart"].Value)
	require.NotContains(settings, "unknown_flag")
}

func TestSettingsCommandError(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	cmdErr := errors.New("nak")
	exec.SetError(mppsolar.CommandFlagSettings, cmdErr)

	settings, err := agg.Settings()
	require.Nil(settings)
	require.ErrorIs(err, cmdErr)
}

func TestPassthroughs(t *testing.T) {

	require := require.New(t)
	agg, exec := newTestAggregator(t)

	require.Equal(exec.KnownCommands(), agg.KnownCommands())

	fields, err := agg.ResponseMap(mppsolar.CommandDeviceSerialNumber)
	require.NoError(err)
	require.Equal("92931509101901", fields.Value("serial_number"))

	raw, err := agg.RawResponse(mppsolar.CommandDeviceSerialNumber)
	require.NoError(err)
	require.Equal("(92931509101901", raw)

	_, err = agg.ResponseMap("QMOD")
	require.ErrorIs(err, mppsolar.ErrUnknownCommand)
	_, err = agg.RawResponse("QMOD")
	require.ErrorIs(err, mppsolar.ErrUnknownCommand)

	require.NoError(agg.Close())
	require.True(exec.Closed())
}
