package log

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// logControlCharReplacer escapes control characters that can be used for log injection (CWE-117).
// Newlines, carriage returns, and tabs in log messages can forge fake log entries,
// mislead incident response, or inject false audit trail entries.
var logControlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// sanitizeLogString escapes control characters in a single string value.
func sanitizeLogString(s string) string {
	return logControlCharReplacer.Replace(s)
}

// GoLogger is the Go built-in (log) implementation of the Logger interface.
// It is the default for components that were not handed a configured logger.
//
// All string values are sanitized to prevent log injection (CWE-117).
type GoLogger struct {
	Level  Level
	fields []Field
	groups []string
}

// Compile-time assertion: *GoLogger implements Logger.
var _ Logger = (*GoLogger)(nil)

// Log writes the entry through the standard library logger when the level
// is enabled.
func (l *GoLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	if !l.Enabled(level) {
		return
	}

	parts := make([]string, 0, 3)
	parts = append(parts, fmt.Sprintf("[%s]", level.String()), sanitizeLogString(msg))

	if rendered := l.renderFields(fields); rendered != "" {
		parts = append(parts, rendered)
	}

	log.Print(strings.Join(parts, " "))
}

// With returns a child logger carrying additional fields.
//
//nolint:ireturn
func (l *GoLogger) With(fields ...Field) Logger {
	if l == nil {
		return &GoLogger{}
	}

	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)

	for _, field := range fields {
		merged = append(merged, l.qualify(field))
	}

	return &GoLogger{Level: l.Level, fields: merged, groups: l.groups}
}

// WithGroup returns a child logger that prefixes subsequent field keys with
// the group name.
//
//nolint:ireturn
func (l *GoLogger) WithGroup(name string) Logger {
	if l == nil {
		return &GoLogger{}
	}

	if strings.TrimSpace(name) == "" {
		return l
	}

	groups := make([]string, 0, len(l.groups)+1)
	groups = append(groups, l.groups...)
	groups = append(groups, name)

	return &GoLogger{Level: l.Level, fields: l.fields, groups: groups}
}

// Enabled reports whether the level is within the logger's verbosity ceiling.
func (l *GoLogger) Enabled(level Level) bool {
	if l == nil {
		return false
	}

	return l.Level >= level
}

// Sync is a no-op; the standard library logger does not buffer.
func (l *GoLogger) Sync(_ context.Context) error { return nil }

func (l *GoLogger) qualify(field Field) Field {
	if len(l.groups) == 0 {
		return field
	}

	return Field{Key: strings.Join(l.groups, ".") + "." + field.Key, Value: field.Value}
}

func (l *GoLogger) renderFields(extra []Field) string {
	total := len(l.fields) + len(extra)
	if total == 0 {
		return ""
	}

	parts := make([]string, 0, total)

	for _, field := range l.fields {
		parts = append(parts, renderField(field))
	}

	for _, field := range extra {
		parts = append(parts, renderField(l.qualify(field)))
	}

	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}

func renderField(field Field) string {
	value := fmt.Sprintf("%v", field.Value)

	return fmt.Sprintf("%s=%s", field.Key, sanitizeLogString(value))
}
