package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var (
	// Logger is the root logger every component logger derives from.
	Logger zerolog.Logger

	Ledger    zerolog.Logger
	Addresses zerolog.Logger
	Builder   zerolog.Logger
	Network   zerolog.Logger
	Storage   zerolog.Logger
	Wallet    zerolog.Logger

	logFile *os.File
)

func init() {
	Logger = newConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init initializes the loggers. When logFilePath is non-empty the log file is
// truncated and receives JSON lines alongside the console output.
func Init(logFilePath, level string) error {
	if logFilePath == "" {
		Logger = newConsoleLogger(os.Stderr, level)
		initComponentLoggers()
		return nil
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	Cleanup()
	logFile = f

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	initComponentLoggers()
	return nil
}

// SetOutput redirects all loggers to w, used by tests and the CLI quiet mode.
func SetOutput(w io.Writer, level string) {
	Logger = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	initComponentLoggers()
}

// Cleanup closes the log file when the application is done using it
func Cleanup() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func newConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(output).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Ledger = Logger.With().Str("component", "ledger").Logger()
	Addresses = Logger.With().Str("component", "addresses").Logger()
	Builder = Logger.With().Str("component", "builder").Logger()
	Network = Logger.With().Str("component", "network").Logger()
	Storage = Logger.With().Str("component", "storage").Logger()
	Wallet = Logger.With().Str("component", "wallet").Logger()
}
