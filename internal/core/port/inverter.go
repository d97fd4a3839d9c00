package port

import (
	"github.com/berfenger/mpp2mqtt/internal/core/domain"
	"github.com/berfenger/mpp2mqtt/pkg/mppsolar"
)

// InverterService is the aggregated view of one inverter. Implementations
// drive a single device and expect callers to serialize access.
type InverterService interface {
	KnownCommands() []string
	ResponseMap(command string) (mppsolar.ResponseMap, error)
	RawResponse(command string) (string, error)
	SerialNumber() (string, error)
	FullStatus() (domain.StatusSnapshot, error)
	Settings() (domain.SettingsSnapshot, error)
	Close() error
}

// InverterServiceProvider opens a fresh InverterService, e.g. after a device restart.
type InverterServiceProvider func() (InverterService, error)
