package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Setup initializes the process logger.
//   - level: trace, debug, info, warn, error, fatal or panic; unknown values mean info
//   - format: "json", "pretty", or "auto" (pretty when stdout is a terminal)
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format, term.IsTerminal(int(os.Stdout.Fd())))
}

// New builds a logger writing to w. isTTY resolves the "auto" format.
func New(w io.Writer, level, format string, isTTY bool) zerolog.Logger {
	if format == "pretty" || (format == "auto" && isTTY) {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}
