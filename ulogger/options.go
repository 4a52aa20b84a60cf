package ulogger

import (
	"io"
	"os"

	"github.com/ordishs/gocore"
)

type Options struct {
	logLevel   string
	loggerType string
	writer     io.Writer
}

type Option func(*Options)

func DefaultOptions() *Options {
	logLevel, _ := gocore.Config().Get("logLevel", "INFO")

	return &Options{
		logLevel:   logLevel,
		loggerType: "zerolog",
		writer:     os.Stdout,
	}
}

// WithLevel sets the minimum level the logger will emit.
func WithLevel(logLevel string) Option {
	return func(o *Options) {
		o.logLevel = logLevel
	}
}

// WithLoggerType selects the logger implementation.
func WithLoggerType(loggerType string) Option {
	return func(o *Options) {
		o.loggerType = loggerType
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}
