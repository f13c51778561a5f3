package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger implements the ports.Logger interface on top of zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// ZerologConfig holds zerolog adapter configuration.
type ZerologConfig struct {
	Level  LogLevel
	Pretty bool      // Human-readable console output instead of JSON
	Output io.Writer // Defaults to os.Stderr
}

// NewZerologLogger creates a structured JSON (or console) logger.
func NewZerologLogger(cfg ZerologConfig) *ZerologLogger {
	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	l := zerolog.New(output).
		Level(toZerologLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	return &ZerologLogger{log: l}
}

func toZerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZerologLogger) write(ctx context.Context, ev *zerolog.Event, msg string, fields ...map[string]interface{}) {
	if merged := mergeFields(ctx, fields...); len(merged) > 0 {
		ev = ev.Fields(merged)
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (z *ZerologLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.write(ctx, z.log.Debug(), msg, fields...)
}

// Info logs a message at Info level.
func (z *ZerologLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.write(ctx, z.log.Info(), msg, fields...)
}

// Warn logs a message at Warning level.
func (z *ZerologLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.write(ctx, z.log.Warn(), msg, fields...)
}

// Error logs an error message at Error level.
func (z *ZerologLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	z.write(ctx, z.log.Error().Err(err), msg, fields...)
}
