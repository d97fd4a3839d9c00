package service

import "slices"

var statusFieldNames = [...]string{
	"SCC Flag", "AllowSccOnFlag", "ChargeAverageCurrent", "SCC PWM temperature",
	"Inverter temperature", "Battery temperature", "Transformer temperature",
	"Fan lock status", "Fan PWM speed", "SCC charge power", "Sync frequency",
	"Inverter charge status", "AC Input Voltage", "AC Input Frequency",
	"AC Output Voltage", "AC Output Frequency", "AC Output Apparent Power",
	"AC Output Active Power", "AC Output Load", "BUS Voltage", "Battery Voltage",
	"Battery Charging Current", "Battery Capacity", "Inverter Heat Sink Temperature",
	"PV Input Current for Battery", "PV Input Voltage", "Battery Voltage from SCC",
	"Battery Discharge Current",
}

var settingsFieldNames = [...]string{
	"Battery Type", "Output Mode", "Battery Bulk Charge Voltage", "Battery Float Charge Voltage",
	"Battery Under Voltage", "Battery Redischarge Voltage", "Battery Recharge Voltage", "Input Voltage Range",
	"Charger Source Priority", "Max AC Charging Current", "Max Charging Current", "Output Source Priority",
	"AC Output Voltage", "AC Output Frequency", "PV OK Condition", "PV Power Balance",
	"Buzzer", "Power Saving", "Overload Restart", "Over Temperature Restart", "LCD Backlight", "Primary Source Interrupt Alarm",
	"Record Fault Code", "Overload Bypass", "LCD Reset to Default", "Machine Type", "AC Input Voltage", "AC Input Current",
	"AC Output Current", "AC Output Apparent Power", "AC Output Active Power", "Battery Voltage", "Max Parallel Units",
}

// StatusFieldNames returns the status fields in display order.
func StatusFieldNames() []string {
	return slices.Clone(statusFieldNames[:])
}

// SettingsFieldNames returns the settings fields in display order.
func SettingsFieldNames() []string {
	return slices.Clone(settingsFieldNames[:])
}
