package types

import (
	"strings"
	"time"
)

// ConsoleMethod is the console function a message was captured from
type ConsoleMethod string

const (
	MethodLog   ConsoleMethod = "log"
	MethodWarn  ConsoleMethod = "warn"
	MethodError ConsoleMethod = "error"
)

// ParseConsoleMethod maps arbitrary method names onto the supported set.
// Anything unknown (info, debug, table...) is treated as log.
func ParseConsoleMethod(method string) ConsoleMethod {
	switch ConsoleMethod(strings.ToLower(strings.TrimSpace(method))) {
	case MethodWarn:
		return MethodWarn
	case MethodError:
		return MethodError
	default:
		return MethodLog
	}
}

// ConsoleMessage is a single captured console call
type ConsoleMessage struct {
	Method     ConsoleMethod `json:"method"`
	Text       string        `json:"text"`
	SourceFile string        `json:"source_file,omitempty"`
}

// Format renders the message the way the console panel shows it:
// "<method>: [<file>] <text>", or "<method>: <text>" without a file.
func (m ConsoleMessage) Format() string {
	var sb strings.Builder
	sb.WriteString(string(m.Method))
	sb.WriteString(": ")
	if m.SourceFile != "" {
		sb.WriteByte('[')
		sb.WriteString(m.SourceFile)
		sb.WriteString("] ")
	}
	sb.WriteString(m.Text)
	return sb.String()
}

// ConsoleLine is a console panel entry
type ConsoleLine struct {
	Seq     int           `json:"seq"`
	RunID   string        `json:"run_id,omitempty"`
	Method  ConsoleMethod `json:"method"`
	File    string        `json:"file,omitempty"`
	Text    string        `json:"text"`
	Line    string        `json:"line"`
	Created time.Time     `json:"created_at"`
}

// NewConsoleLine formats msg into a panel line
func NewConsoleLine(runID string, msg ConsoleMessage) ConsoleLine {
	return ConsoleLine{
		RunID:   runID,
		Method:  msg.Method,
		File:    msg.SourceFile,
		Text:    msg.Text,
		Line:    msg.Format(),
		Created: time.Now(),
	}
}
