package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostedid/sendout/internal/model"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger instance writing to stderr.
// Stdout is reserved for the sendout result payload.
func New(level string, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a Logger writing to w
func NewWithWriter(w io.Writer, level string, format string) *Logger {
	// Set global log level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger

	if format == "text" || format == "console" {
		// Human-readable output for development
		output := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(w).With().Timestamp().Caller().Logger()
	}

	return &Logger{Logger: logger}
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithSendoutID returns a new logger with the sendout ID attached
func (l *Logger) WithSendoutID(sendoutID string) *Logger {
	return &Logger{
		Logger: l.With().Str("sendout_id", sendoutID).Logger(),
	}
}

// WithAccount returns a new logger with the account fingerprint attached
func (l *Logger) WithAccount(fingerprint string) *Logger {
	return &Logger{
		Logger: l.With().Str("account", fingerprint).Logger(),
	}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// Delivery logs one delivery record
func (l *Logger) Delivery(position int, rec model.DeliveryRecord) {
	event := l.Info().
		Int("position", position).
		Str("address", rec.Address).
		Str("status", string(rec.Status))

	if rec.SentAt != nil {
		event.Time("sent_at", *rec.SentAt)
	}

	event.Msg("delivery recorded")
}
