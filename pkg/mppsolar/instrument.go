package mppsolar

import (
	"time"

	"go.uber.org/zap"
)

type ExecutorInstrument struct {
	RecordTime  func(command string, execTime time.Duration)
	RecordError func(command string, err error)
}

type instrumentedExecutor struct {
	executor   CommandExecutor
	instrument []ExecutorInstrument
}

func (e instrumentedExecutor) Execute(command string) (*Response, error) {
	defer RecordTimer(command, e.instrument)()
	resp, err := e.executor.Execute(command)
	if err != nil {
		for i := range e.instrument {
			if e.instrument[i].RecordError != nil {
				e.instrument[i].RecordError(command, err)
			}
		}
	}
	return resp, err
}

func (e instrumentedExecutor) KnownCommands() []string {
	return e.executor.KnownCommands()
}

func (e instrumentedExecutor) Close() error {
	return e.executor.Close()
}

func RecordTimer(command string, instrument []ExecutorInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			if instrument[i].RecordTime != nil {
				instrument[i].RecordTime(command, duration)
			}
		}
	}
}

func TraceLoggerInstrumentation(logger *zap.Logger) *ExecutorInstrument {
	return &ExecutorInstrument{
		RecordTime: func(command string, execTime time.Duration) {
			logger.Debug("executor command", zap.String("command", command), zap.Int64("millis", execTime.Milliseconds()))
		},
		RecordError: func(command string, err error) {
			logger.Warn("executor command failed", zap.String("command", command), zap.Error(err))
		},
	}
}

// InstrumentedOpener wraps every executor produced by open with trace logging
// and the optional extra instrumentation.
func InstrumentedOpener(open Opener, logger *zap.Logger, instrumentation *ExecutorInstrument) Opener {
	return func(device string, baudRate int) (CommandExecutor, error) {
		executor, err := open(device, baudRate)
		if err != nil {
			return nil, err
		}

		var inst []ExecutorInstrument
		if logger != nil {
			logInst := TraceLoggerInstrumentation(logger.With(zap.String("device", device), zap.Int("baud_rate", baudRate)))
			inst = append(inst, *logInst)
		}
		if instrumentation != nil {
			inst = append(inst, *instrumentation)
		}
		return instrumentedExecutor{
			executor:   executor,
			instrument: inst,
		}, nil
	}
}
