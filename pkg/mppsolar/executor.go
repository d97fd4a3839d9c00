package mppsolar

import (
	"errors"
	"strings"
)

const DefaultBaudRate = 2400

// PI30 query commands used by the aggregator
const (
	CommandDeviceSerialNumber = "QID"
	CommandStatusExtended     = "Q1"
	CommandStatus             = "QPIGS"
	CommandDefaultSettings    = "QDI"
	CommandCurrentSettings    = "QPIRI"
	CommandFlagSettings       = "QFLAG"
)

var ErrUnknownCommand = errors.New("mppsolar: unknown command")

// Reading is the (value, unit) pair a command reports for one field.
// Unit is empty when the device does not report one.
type Reading struct {
	Value string
	Unit  string
}

// ResponseMap maps normalized field keys to readings.
type ResponseMap map[string]Reading

type Response struct {
	Command string
	Raw     string
	Fields  ResponseMap
}

// CommandExecutor runs named commands against one device. Implementations
// own the device handle and are not required to be safe for concurrent use.
type CommandExecutor interface {
	Execute(command string) (*Response, error)
	KnownCommands() []string
	Close() error
}

// Opener binds a CommandExecutor to a device and baud rate.
type Opener func(device string, baudRate int) (CommandExecutor, error)

// FieldKey normalizes a human readable field name: "AC Input Voltage" => "ac_input_voltage".
func FieldKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func (m ResponseMap) Lookup(key string) (Reading, bool) {
	r, ok := m[key]
	return r, ok
}

// Value returns the value of key, or "" if the key is absent.
func (m ResponseMap) Value(key string) string {
	return m[key].Value
}

// Unit returns the unit of key, or "" if the key is absent.
func (m ResponseMap) Unit(key string) string {
	return m[key].Unit
}

// MergeResponseMaps merges maps into a new one. Later maps win on key collision.
func MergeResponseMaps(maps ...ResponseMap) ResponseMap {
	size := 0
	for _, m := range maps {
		size += len(m)
	}
	merged := make(ResponseMap, size)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
