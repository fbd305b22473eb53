// Package logger is a small logging facade. Packages log through a
// LogWrapper and the application decides where entries go with a LogFunc.
package logger

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

type Level uint32

// lower levels are more severe
const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = [...]string{"error", "warn", "info", "debug", "trace"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// Enabled reports whether an entry at level passes a filter set to l
func (l Level) Enabled(level Level) bool {
	return level <= l
}

// ParseLevel parses a level name, case insensitive
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, levelName := range levelNames {
		if levelName == name {
			return Level(i), nil
		}
	}

	return ErrorLevel, fmt.Errorf("unknown log level %q", name)
}

type LogPayload struct {
	Level   Level
	Fields  map[string]interface{}
	Error   error
	Message string
}

type LogFunc func(payload LogPayload)

func NoopLogFunc(payload LogPayload) {}

func NewNoopLogger() *LogWrapper {
	return NewLogWrapper(NoopLogFunc, nil)
}

// NewLogfmtFunc writes one logfmt line per entry to w, keys sorted.
// Entries above level are discarded.
func NewLogfmtFunc(w io.Writer, level Level) LogFunc {
	var mx sync.Mutex

	return func(payload LogPayload) {
		if !level.Enabled(payload.Level) {
			return
		}

		m := make(map[string]string, len(payload.Fields)+3)
		for k, v := range payload.Fields {
			m[k] = fmt.Sprint(v)
		}

		m["level"] = payload.Level.String()
		m["msg"] = payload.Message
		if payload.Error != nil {
			m["error"] = payload.Error.Error()
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%q", k, m[k])
		}
		b.WriteByte('\n')

		mx.Lock()
		defer mx.Unlock()
		io.WriteString(w, b.String())
	}
}

// LogWrapper carries fields and an error onto every entry. WithField and
// WithError return copies, the receiver is never modified.
type LogWrapper struct {
	LogFunc LogFunc
	Fields  map[string]interface{}
	Error   error
}

func NewLogWrapper(logFunc LogFunc, fields map[string]interface{}) *LogWrapper {
	if logFunc == nil {
		logFunc = NoopLogFunc
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}

	return &LogWrapper{
		LogFunc: logFunc,
		Fields:  fields,
	}
}

func (l *LogWrapper) derive(key string, value interface{}, err error) *LogWrapper {
	fields := make(map[string]interface{}, len(l.Fields)+1)
	for k, v := range l.Fields {
		fields[k] = v
	}
	if key != "" {
		fields[key] = value
	}

	return &LogWrapper{LogFunc: l.LogFunc, Fields: fields, Error: err}
}

func (l *LogWrapper) WithError(err error) *LogWrapper {
	return l.derive("", nil, err)
}

func (l *LogWrapper) WithField(key string, value interface{}) *LogWrapper {
	return l.derive(key, value, l.Error)
}

func (l *LogWrapper) log(level Level, format string, v []interface{}) {
	l.LogFunc(LogPayload{
		Level:   level,
		Fields:  l.Fields,
		Error:   l.Error,
		Message: fmt.Sprintf(format, v...),
	})
}

func (l *LogWrapper) Tracef(format string, v ...interface{}) { l.log(TraceLevel, format, v) }
func (l *LogWrapper) Debugf(format string, v ...interface{}) { l.log(DebugLevel, format, v) }
func (l *LogWrapper) Infof(format string, v ...interface{})  { l.log(InfoLevel, format, v) }
func (l *LogWrapper) Warnf(format string, v ...interface{})  { l.log(WarnLevel, format, v) }
func (l *LogWrapper) Errorf(format string, v ...interface{}) { l.log(ErrorLevel, format, v) }
