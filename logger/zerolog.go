package logger

import (
	"github.com/rs/zerolog"
)

// NewZerologFunc returns a LogFunc that writes through a zerolog logger.
// Trace maps onto zerolog's trace level so the logger's own level filter applies.
func NewZerologFunc(l zerolog.Logger) LogFunc {
	return func(payload LogPayload) {
		var event *zerolog.Event

		switch payload.Level {
		case ErrorLevel:
			event = l.Error()
		case WarnLevel:
			event = l.Warn()
		case InfoLevel:
			event = l.Info()
		case DebugLevel:
			event = l.Debug()
		default:
			event = l.Trace()
		}

		// disabled levels return a nil event
		if event == nil {
			return
		}

		if payload.Error != nil {
			event = event.Err(payload.Error)
		}

		event.Fields(payload.Fields).Msg(payload.Message)
	}
}

// ZerologLevel converts a level into the matching zerolog level
func ZerologLevel(level Level) zerolog.Level {
	switch level {
	case ErrorLevel:
		return zerolog.ErrorLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case DebugLevel:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}
