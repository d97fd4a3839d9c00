package mppsolar

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// TestExecutor answers commands from an in-memory table and counts calls.
// It stands in for a PIP-4048MS in tests and demos.
type TestExecutor struct {
	mu        sync.Mutex
	responses map[string]*Response
	failures  map[string]error
	calls     map[string]int
	closed    bool

	Device   string
	BaudRate int
}

func NewTestExecutor(responses map[string]ResponseMap) *TestExecutor {
	exec := &TestExecutor{
		responses: map[string]*Response{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
	for command, fields := range responses {
		exec.SetResponse(command, fields)
	}
	return exec
}

func CreateTestExecutor() *TestExecutor {
	return NewTestExecutor(map[string]ResponseMap{
		CommandDeviceSerialNumber: {
			"serial_number": {Value: "92931509101901"},
		},
		CommandStatusExtended: {
			"time_until_the_end_of_absorb_charging": {Value: "0", Unit: "sec"},
			"time_until_the_end_of_float_charging":  {Value: "0", Unit: "sec"},
			"scc_flag":                              {Value: "SCC is powered and communicating"},
			"allowscconflag":                        {Value: "01"},
			"chargeaveragecurrent":                  {Value: "00"},
			"scc_pwm_temperature":                   {Value: "051", Unit: "°C"},
			"inverter_temperature":                  {Value: "044", Unit: "°C"},
			"battery_temperature":                   {Value: "040", Unit: "°C"},
			"transformer_temperature":               {Value: "052", Unit: "°C"},
			"fan_lock_status":                       {Value: "Not locked"},
			"fan_pwm_speed":                         {Value: "0030", Unit: "%"},
			"scc_charge_power":                      {Value: "0870", Unit: "W"},
			"sync_frequency":                        {Value: "50.00", Unit: "Hz"},
			"inverter_charge_status":                {Value: "bulk stage"},
		},
		CommandStatus: {
			"ac_input_voltage":               {Value: "0.0", Unit: "V"},
			"ac_input_frequency":             {Value: "0.0", Unit: "Hz"},
			"ac_output_voltage":              {Value: "230.0", Unit: "V"},
			"ac_output_frequency":            {Value: "49.9", Unit: "Hz"},
			"ac_output_apparent_power":       {Value: "161", Unit: "VA"},
			"ac_output_active_power":         {Value: "119", Unit: "W"},
			"ac_output_load":                 {Value: "3", Unit: "%"},
			"bus_voltage":                    {Value: "460", Unit: "V"},
			"battery_voltage":                {Value: "57.50", Unit: "V"},
			"battery_charging_current":       {Value: "12", Unit: "A"},
			"battery_capacity":               {Value: "100", Unit: "%"},
			"inverter_heat_sink_temperature": {Value: "69", Unit: "°C"},
			"pv_input_current_for_battery":   {Value: "14", Unit: "A"},
			"pv_input_voltage":               {Value: "103.8", Unit: "V"},
			"battery_voltage_from_scc":       {Value: "57.45", Unit: "V"},
			"battery_discharge_current":      {Value: "0", Unit: "A"},
		},
		CommandDefaultSettings: {
			"ac_output_voltage":              {Value: "230.0", Unit: "V"},
			"ac_output_frequency":            {Value: "50.0", Unit: "Hz"},
			"max_ac_charging_current":        {Value: "30", Unit: "A"},
			"battery_under_voltage":          {Value: "42.0", Unit: "V"},
			"battery_float_charge_voltage":   {Value: "54.0", Unit: "V"},
			"battery_bulk_charge_voltage":    {Value: "56.4", Unit: "V"},
			"battery_recharge_voltage":       {Value: "46.0", Unit: "V"},
			"max_charging_current":           {Value: "60", Unit: "A"},
			"input_voltage_range":            {Value: "Appliance"},
			"output_source_priority":         {Value: "Utility first"},
			"charger_source_priority":        {Value: "Solar + Utility"},
			"battery_type":                   {Value: "AGM"},
			"buzzer":                         {Value: "enabled"},
			"power_saving":                   {Value: "disabled"},
			"overload_restart":               {Value: "disabled"},
			"over_temperature_restart":       {Value: "disabled"},
			"lcd_backlight":                  {Value: "enabled"},
			"primary_source_interrupt_alarm": {Value: "enabled"},
			"record_fault_code":              {Value: "enabled"},
			"overload_bypass":                {Value: "disabled"},
			"lcd_reset_to_default":           {Value: "enabled"},
			"output_mode":                    {Value: "single machine output"},
			"battery_redischarge_voltage":    {Value: "0.0", Unit: "V"},
			"pv_ok_condition":                {Value: "As long as one unit of inverters has connect PV, parallel system will consider PV OK"},
			"pv_power_balance":               {Value: "PV input max power will be the sum of the max charged power and loads power"},
		},
		CommandCurrentSettings: {
			"ac_input_voltage":             {Value: "230.0", Unit: "V"},
			"ac_input_current":             {Value: "21.7", Unit: "A"},
			"ac_output_voltage":            {Value: "230.0", Unit: "V"},
			"ac_output_frequency":          {Value: "50.0", Unit: "Hz"},
			"ac_output_current":            {Value: "21.7", Unit: "A"},
			"ac_output_apparent_power":     {Value: "5000", Unit: "VA"},
			"ac_output_active_power":       {Value: "4000", Unit: "W"},
			"battery_voltage":              {Value: "48.0", Unit: "V"},
			"battery_recharge_voltage":     {Value: "46.0", Unit: "V"},
			"battery_under_voltage":        {Value: "42.0", Unit: "V"},
			"battery_bulk_charge_voltage":  {Value: "57.6", Unit: "V"},
			"battery_float_charge_voltage": {Value: "54.0", Unit: "V"},
			"battery_type":                 {Value: "User"},
			"max_ac_charging_current":      {Value: "10", Unit: "A"},
			"max_charging_current":         {Value: "60", Unit: "A"},
			"input_voltage_range":          {Value: "UPS"},
			"output_source_priority":       {Value: "SBU first"},
			"charger_source_priority":      {Value: "Solar first"},
			"max_parallel_units":           {Value: "9", Unit: "units"},
			"machine_type":                 {Value: "Off Grid"},
			"topology":                     {Value: "transformerless"},
			"output_mode":                  {Value: "single machine output"},
			"battery_redischarge_voltage":  {Value: "54.0", Unit: "V"},
			"pv_ok_condition":              {Value: "As long as one unit of inverters has connect PV, parallel system will consider PV OK"},
			"pv_power_balance":             {Value: "PV input max power will be the sum of the max charged power and loads power"},
		},
		CommandFlagSettings: {
			"buzzer":                         {Value: "disabled"},
			"overload_bypass":                {Value: "enabled"},
			"power_saving":                   {Value: "disabled"},
			"lcd_reset_to_default":           {Value: "enabled"},
			"overload_restart":               {Value: "enabled"},
			"over_temperature_restart":       {Value: "enabled"},
			"lcd_backlight":                  {Value: "enabled"},
			"primary_source_interrupt_alarm": {Value: "enabled"},
			"record_fault_code":              {Value: "disabled"},
		},
	})
}

func (e *TestExecutor) SetResponse(command string, fields ResponseMap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[command] = &Response{
		Command: command,
		Raw:     rawFromFields(fields),
		Fields:  maps.Clone(fields),
	}
	delete(e.failures, command)
}

func (e *TestExecutor) setRaw(command string, raw string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if resp, ok := e.responses[command]; ok {
		resp.Raw = raw
	}
}

func (e *TestExecutor) SetError(command string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[command] = err
}

func (e *TestExecutor) Calls(command string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[command]
}

func (e *TestExecutor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Opener returns an Opener handing out this executor.
func (e *TestExecutor) Opener() Opener {
	return func(device string, baudRate int) (CommandExecutor, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.Device = device
		e.BaudRate = baudRate
		e.closed = false
		return e, nil
	}
}

func (e *TestExecutor) Execute(command string) (*Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[command]++
	if err, ok := e.failures[command]; ok {
		return nil, err
	}
	resp, ok := e.responses[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	return &Response{
		Command: resp.Command,
		Raw:     resp.Raw,
		Fields:  maps.Clone(resp.Fields),
	}, nil
}

func (e *TestExecutor) KnownCommands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.responses))
}

func (e *TestExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func rawFromFields(fields ResponseMap) string {
	keys := slices.Sorted(maps.Keys(fields))
	raw := "("
	for i, k := range keys {
		if i > 0 {
			raw += " "
		}
		raw += fields[k].Value
	}
	return raw
}
