package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configure the process-wide logger.
type Options struct {
	Level   string // trace, debug, info, warn, error; empty means info
	File    string // optional log file, appended alongside console output
	NoColor bool
}

// Setup builds the root logger: a console writer on stderr, plus an optional
// file sink. The returned closer releases the file sink.
func Setup(opts Options) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), func() {}, fmt.Errorf("unknown log level %q", opts.Level)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	}}

	closer := func() {}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return zerolog.Nop(), func() {}, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), func() {}, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = func() { f.Close() }
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return logger, closer, nil
}

// Category derives a sub-logger tagged with a component name, mirroring the
// category-based loggers the rest of the code keys on (config, prompt, llm,
// chat, repl).
func Category(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("category", name).Logger()
}

// SetLevel changes the global level at runtime.
func SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}
