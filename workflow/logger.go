package workflow

import "go.uber.org/zap"

// Logger receives a notification each time a Signal successfully drives a
// Workflow Execution from one state to another.
type Logger interface {
	LogTransition(from, signal, to string)
}

// ZapLogger writes each transition to a zap logger at debug level.
type ZapLogger struct {
	L *zap.Logger
}

// LogTransition logs one transition. Eventless routes are logged with the
// signal "(always)".
func (z ZapLogger) LogTransition(from, signal, to string) {
	if z.L == nil {
		return
	}
	if signal == alwaysSignal {
		signal = "(always)"
	}
	z.L.Debug("workflow transition",
		zap.String("from", from),
		zap.String("signal", signal),
		zap.String("to", to),
	)
}
