package logger

import (
	"io"
	"os"

	"tradeDesk/internal/ports"
)

// New builds the logger selected by format: "json" and "console" use zerolog,
// anything else the standard library text logger. A nil w means os.Stderr.
func New(format string, level LogLevel, w io.Writer) ports.Logger {
	if w == nil {
		w = os.Stderr
	}
	switch format {
	case "json":
		return NewZerologLogger(ZerologConfig{Level: level, Output: w})
	case "console":
		return NewZerologLogger(ZerologConfig{Level: level, Output: w, Pretty: true})
	default:
		return NewStdLoggerTo(w, level)
	}
}
