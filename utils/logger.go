package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// InfoLogger and ErrorLogger start out as plain logrus loggers so packages
// can log before InitLogger runs, e.g. in tests.
var (
	InfoLogger  = logrus.New()
	ErrorLogger = logrus.New()
)

func InitLogger() {
	InfoLogger = logrus.New()
	ErrorLogger = logrus.New()

	// stdout for info, stderr for errors
	InfoLogger.SetOutput(os.Stdout)
	InfoLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ErrorLogger.SetOutput(os.Stderr)
	ErrorLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	InfoLogger.SetLevel(logrus.InfoLevel)
	ErrorLogger.SetLevel(logrus.ErrorLevel)
}

// SetLevel parses level (e.g. "debug", "warn") and applies it to InfoLogger.
// Unknown levels leave the logger untouched.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	InfoLogger.SetLevel(lvl)
	return nil
}

// Silence discards all log output; device commands use it so their stdout
// stays machine readable.
func Silence() {
	InfoLogger.SetOutput(io.Discard)
	ErrorLogger.SetOutput(io.Discard)
}
