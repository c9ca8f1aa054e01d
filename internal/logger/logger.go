// Package logger builds the process logger: logrus with optional file
// rotation through lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Config struct {
	Level      string
	Format     string // text | json
	Output     string // stdout | stderr | file
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New returns a configured logger. An unknown level falls back to info.
func New(cfg Config) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		if cfg.Level != "" {
			l.Warnf("invalid log level %q, using info", cfg.Level)
		}
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	out, err := output(cfg)
	if err != nil {
		return nil, err
	}
	l.SetOutput(out)
	return l, nil
}

func output(cfg Config) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotate := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		// keep the console readable when running by hand
		return io.MultiWriter(os.Stdout, rotate), nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}

// Discard is a logger that writes nothing, for tests and dry runs.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
