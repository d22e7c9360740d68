// Package log is a thin key/value logging facade over zerolog. All the node
// packages log through it so the output format and level are set in one place.
package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var (
	log   zerolog.Logger
	level = LogLevelError

	// panicOnInvalidChars makes every log call panic if the resulting line
	// contains the unicode replacement character. Used by tests to catch
	// binary data passed as strings.
	panicOnInvalidChars = os.Getenv("LOG_PANIC_ON_INVALIDCHARS") == "true"

	logTestWriter     io.Writer
	logTestWriterName = "log_test_writer"
)

func init() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = LogLevelError
	}
	Init(lvl, "stderr", nil)
}

// invalidCharChecker is an io.Writer that panics when the written line carries
// an encoded replacement character.
type invalidCharChecker struct{}

func (*invalidCharChecker) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte(`\ufffd`)) || bytes.ContainsRune(p, utf8.RuneError) {
		panic(fmt.Sprintf("log line with invalid chars: %q", p))
	}
	return len(p), nil
}

// errorLevelWriter only forwards warn and above to the wrapped writer.
type errorLevelWriter struct {
	io.Writer
}

func (w *errorLevelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < zerolog.WarnLevel {
		return len(p), nil
	}
	return w.Write(p)
}

// Init configures the logger. Level is one of debug, info, warn or error.
// Output is stdout, stderr, or a file path. If errorOutput is not nil, warnings
// and errors are also written there.
func Init(logLevel, output string, errorOutput io.Writer) {
	var out io.Writer
	switch output {
	case "stdout":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	case "stderr":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case logTestWriterName:
		out = logTestWriter
	default:
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			panic(fmt.Sprintf("cannot create log directory: %v", err))
		}
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			panic(fmt.Sprintf("cannot open log output %s: %v", output, err))
		}
		out = f
	}
	outputs := []io.Writer{out}
	if errorOutput != nil {
		outputs = append(outputs, &errorLevelWriter{errorOutput})
	}
	if panicOnInvalidChars {
		outputs = append(outputs, &invalidCharChecker{})
	}
	log = zerolog.New(zerolog.MultiLevelWriter(outputs...)).
		With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	switch strings.ToLower(logLevel) {
	case LogLevelDebug:
		log = log.Level(zerolog.DebugLevel)
	case LogLevelInfo:
		log = log.Level(zerolog.InfoLevel)
	case LogLevelWarn:
		log = log.Level(zerolog.WarnLevel)
	case LogLevelError:
		log = log.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("invalid log level: %q", logLevel))
	}
	level = strings.ToLower(logLevel)
}

// Level returns the current log level.
func Level() string {
	return level
}

// Logger returns the underlying zerolog logger.
func Logger() *zerolog.Logger {
	return &log
}

func Debug(args ...any) { log.Debug().Msg(fmt.Sprint(args...)) }
func Info(args ...any)  { log.Info().Msg(fmt.Sprint(args...)) }
func Warn(args ...any)  { log.Warn().Msg(fmt.Sprint(args...)) }
func Error(args ...any) { log.Error().Msg(fmt.Sprint(args...)) }

func Debugf(template string, args ...any) { log.Debug().Msgf(template, args...) }
func Infof(template string, args ...any)  { log.Info().Msgf(template, args...) }
func Warnf(template string, args ...any)  { log.Warn().Msgf(template, args...) }
func Errorf(template string, args ...any) { log.Error().Msgf(template, args...) }

// Fatal logs the arguments and exits the process.
func Fatal(args ...any) {
	log.Fatal().Msg(fmt.Sprint(args...))
}

// Fatalf logs the formatted message and exits the process.
func Fatalf(template string, args ...any) {
	log.Fatal().Msgf(template, args...)
}

// Debugw logs a message with key/value pairs.
func Debugw(msg string, keyvalues ...any) { log.Debug().Fields(keyvalues).Msg(msg) }

// Infow logs a message with key/value pairs.
func Infow(msg string, keyvalues ...any) { log.Info().Fields(keyvalues).Msg(msg) }

// Warnw logs a message with key/value pairs.
func Warnw(msg string, keyvalues ...any) { log.Warn().Fields(keyvalues).Msg(msg) }

// Errorw logs an error with a message and optional key/value pairs.
func Errorw(err error, msg string, keyvalues ...any) {
	log.Error().Err(err).Fields(keyvalues).Msg(msg)
}
