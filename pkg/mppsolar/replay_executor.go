package mppsolar

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReplayCapture is the on-disk form of a recorded device session:
//
//	commands:
//	  QID:
//	    raw: "(92931509101901"
//	    fields:
//	      serial_number: ["92931509101901"]
//	  QPIGS:
//	    fields:
//	      battery_voltage: ["57.50", "V"]
type ReplayCapture struct {
	Commands map[string]ReplayCommand `yaml:"commands"`
}

type ReplayCommand struct {
	Raw    string              `yaml:"raw"`
	Fields map[string][]string `yaml:"fields"`
}

func LoadReplayCapture(path string) (*ReplayCapture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseReplayCapture(data)
}

func ParseReplayCapture(data []byte) (*ReplayCapture, error) {
	var capture ReplayCapture
	if err := yaml.Unmarshal(data, &capture); err != nil {
		return nil, fmt.Errorf("mppsolar: invalid replay capture: %w", err)
	}
	if len(capture.Commands) == 0 {
		return nil, errors.New("mppsolar: replay capture has no commands")
	}
	for command, recorded := range capture.Commands {
		for key, pair := range recorded.Fields {
			if len(pair) == 0 || len(pair) > 2 {
				return nil, fmt.Errorf("mppsolar: replay capture %s.%s must be [value] or [value, unit]", command, key)
			}
		}
	}
	return &capture, nil
}

func (c *ReplayCapture) responses() map[string]ResponseMap {
	responses := make(map[string]ResponseMap, len(c.Commands))
	for command, recorded := range c.Commands {
		fields := make(ResponseMap, len(recorded.Fields))
		for key, pair := range recorded.Fields {
			reading := Reading{Value: pair[0]}
			if len(pair) == 2 {
				reading.Unit = pair[1]
			}
			fields[FieldKey(key)] = reading
		}
		responses[command] = fields
	}
	return responses
}

// ReplayOpener returns an Opener that serves the commands recorded in captureFile
// for whatever device it is asked to open.
func ReplayOpener(captureFile string) Opener {
	return func(device string, baudRate int) (CommandExecutor, error) {
		capture, err := LoadReplayCapture(captureFile)
		if err != nil {
			return nil, err
		}
		exec := NewTestExecutor(capture.responses())
		for command, recorded := range capture.Commands {
			if recorded.Raw != "" {
				exec.setRaw(command, recorded.Raw)
			}
		}
		exec.Device = device
		exec.BaudRate = baudRate
		return exec, nil
	}
}
