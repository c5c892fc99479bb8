// Package logging configures the zerolog logger shared by lndir's packages.
//
// Diagnostics go to stderr so they never mix with the per-link progress
// output on stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelFor maps a -v count to a log level.
func LevelFor(verbosity int) zerolog.Level {
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// SetupLogger configures the global logger based on verbosity level.
// Console output goes to stderr; when logFile is not empty, JSON lines are
// appended to it as well. The returned function closes the log file and
// points the global logger back at the console; it is never nil.
func SetupLogger(verbosity int, logFile string) (func(), error) {
	zerolog.SetGlobalLevel(LevelFor(verbosity))

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}

	closeLog := func() {}
	writers := []io.Writer{consoleWriter}

	var fileErr error
	if logFile != "" {
		handle, err := openLogFile(logFile)
		if err == nil {
			writers = append(writers, handle)
			closeLog = func() {
				log.Logger = New(consoleWriter, verbosity)
				_ = handle.Close()
			}
		}
		fileErr = err
	}

	log.Logger = New(io.MultiWriter(writers...), verbosity)

	if fileErr != nil {
		log.Warn().Err(fileErr).Str("path", logFile).Msg("Failed to open log file, logging to console only")
		return closeLog, fileErr
	}

	log.Debug().Int("verbosity", verbosity).Str("logFile", logFile).Msg("Logger initialized")
	return closeLog, nil
}

// New builds a logger writing to w. Caller information is added at debug
// verbosity and above.
func New(w io.Writer, verbosity int) zerolog.Logger {
	logger := zerolog.New(w).Level(LevelFor(verbosity)).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// GetLogger returns a contextualized logger with the given name
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return file, nil
}
