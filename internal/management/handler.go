package management

import "strings"

// Severity of a progress message.
type Severity int

// Severities, ordered from least to most severe.
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ParseSeverity maps a container warning level to a Severity.
func ParseSeverity(level string) Severity {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR", "SEVERE", "FATAL":
		return SeverityError
	case "WARN", "WARNING":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MessageHandler receives progress messages while an operation runs.
type MessageHandler interface {
	HandleMessage(severity Severity, text string)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(severity Severity, text string)

// HandleMessage calls f.
func (f MessageHandlerFunc) HandleMessage(severity Severity, text string) {
	f(severity, text)
}
