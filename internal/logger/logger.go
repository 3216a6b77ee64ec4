package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// ParseLevel maps a config level name to a zerolog level
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level: %s", name)
	}
}

// NoOp discards everything
type NoOp struct{}

func (NoOp) Debug(component, message string, fields map[string]interface{})   {}
func (NoOp) Info(component, message string, fields map[string]interface{})    {}
func (NoOp) Warning(component, message string, fields map[string]interface{}) {}
func (NoOp) Error(component string, err error, fields map[string]interface{})  {}

// WithFields returns a Logger that adds fields to every entry
func WithFields(base Logger, fields map[string]interface{}) Logger {
	if base == nil {
		base = NoOp{}
	}
	return &fieldLogger{base: base, fields: fields}
}

type fieldLogger struct {
	base   Logger
	fields map[string]interface{}
}

func (l *fieldLogger) merge(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (l *fieldLogger) Debug(component, message string, fields map[string]interface{}) {
	l.base.Debug(component, message, l.merge(fields))
}

func (l *fieldLogger) Info(component, message string, fields map[string]interface{}) {
	l.base.Info(component, message, l.merge(fields))
}

func (l *fieldLogger) Warning(component, message string, fields map[string]interface{}) {
	l.base.Warning(component, message, l.merge(fields))
}

func (l *fieldLogger) Error(component string, err error, fields map[string]interface{}) {
	l.base.Error(component, err, l.merge(fields))
}
