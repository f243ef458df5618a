package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "barber-booking"

type Options struct {
	Level string
	Env   string
	// File enables rotated file output next to stdout.
	File string
}

// New builds the process logger: JSON to stdout, plus a rotated file
// when one is configured.
func New(opts Options) *slog.Logger {
	writers := []io.Writer{os.Stdout}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return newLogger(io.MultiWriter(writers...), opts)
}

func newLogger(w io.Writer, opts Options) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: strings.EqualFold(opts.Env, "development"),
	})
	return slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("env", opts.Env),
	)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
