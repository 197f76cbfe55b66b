// Package logging builds the zerolog loggers used by commands and the daemon.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a logger.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// File, when set, receives JSON lines rotated by lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console is the human-readable sink. Nil disables it.
	Console io.Writer
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// New returns a logger writing to the configured sinks and a close func for
// the rotated file.
func New(opts Options) (zerolog.Logger, func() error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(opts.Console),
		})
	}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			Compress:   true,
		}
		writers = append(writers, lj)
		closeFn = lj.Close
	}

	switch len(writers) {
	case 0:
		return zerolog.Nop(), closeFn
	case 1:
		return zerolog.New(writers[0]).Level(ParseLevel(opts.Level)).With().Timestamp().Logger(), closeFn
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger(), closeFn
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
