package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telnet_testserver/internal/shared/types"
)

// Init initializes the global zerolog logger writing to stdout.
func Init(cfg types.LogConf) error {
	return InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter is Init with an explicit destination. Tests use it to
// capture output.
func InitWithWriter(cfg types.LogConf, out io.Writer) error {
	levelStr := strings.ToLower(strings.TrimSpace(cfg.Level))
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
		if levelStr != "" {
			fmt.Fprintf(os.Stderr, "Unknown log level '%s', defaulting to 'info'\n", levelStr)
		}
	}

	// Force all timestamps to be in UTC.
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !isTerminal(out),
	}

	log.Logger = zerolog.New(consoleWriter).
		Level(level).
		With().
		Timestamp().
		Logger()

	Debug().Msgf("Logger initialized with level: %s", level.String())

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// WithComponent 返回带有 component 字段的子 logger，用于区分不同模块的输出。
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Event is a wrapper for a zerolog event.
type Event struct {
	*zerolog.Event
}

// Debug starts a new message with debug level.
func Debug() *Event {
	return &Event{log.Debug()}
}

// Info starts a new message with info level.
func Info() *Event {
	return &Event{log.Info()}
}

// Warn starts a new message with warning level.
func Warn() *Event {
	return &Event{log.Warn()}
}

// Error starts a new message with error level.
func Error() *Event {
	return &Event{log.Error()}
}

// Fatal starts a new message with fatal level. The program will exit.
func Fatal() *Event {
	return &Event{log.Fatal()}
}

// Str adds a string field to the event.
func (e *Event) Str(key, value string) *Event {
	e.Event = e.Event.Str(key, value)
	return e
}

// Int adds an integer field to the event.
func (e *Event) Int(key string, value int) *Event {
	e.Event = e.Event.Int(key, value)
	return e
}

func (e *Event) Uint64(key string, value uint64) *Event {
	e.Event = e.Event.Uint64(key, value)
	return e
}

func (e *Event) Dur(key string, value time.Duration) *Event {
	e.Event = e.Event.Dur(key, value)
	return e
}

// Err adds an error field to the event.
func (e *Event) Err(err error) *Event {
	e.Event = e.Event.Err(err)
	return e
}

// Msgf sends the event with a formatted message.
// This is a convenience method and is less performant than using structured fields.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Event.Msgf(format, v...)
}
