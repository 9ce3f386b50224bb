package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level   string
	Verbose bool // forces debug

	// File switches output to a rotating log file. Empty keeps stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the global logger. Logs go to stderr (or a file) so they
// never interleave with the ticker on stdout.
func Setup(opts Options) {
	log.Logger = New(opts, nil)
	zerolog.SetGlobalLevel(parseLevel(opts))
}

// New builds a logger; w overrides the destination when non-nil.
func New(opts Options, w io.Writer) zerolog.Logger {
	if w == nil {
		w = writerFor(opts)
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opts.File != ""}
	return zerolog.New(output).With().Timestamp().Logger()
}

func writerFor(opts Options) io.Writer {
	if strings.TrimSpace(opts.File) == "" {
		return os.Stderr
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
}

func parseLevel(opts Options) zerolog.Level {
	if opts.Verbose {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
