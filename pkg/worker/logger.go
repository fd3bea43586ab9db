package worker

import (
	"log"
	"os"
)

// Logger is the printf-style logger used by the worker. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

// LoggerFunc adapts a printf-style function to Logger.
type LoggerFunc func(format string, args ...interface{})

// Printf calls f.
func (f LoggerFunc) Printf(format string, args ...interface{}) {
	f(format, args...)
}

var defaultLogger Logger = log.New(os.Stdout, "jirahooks/worker ", log.LstdFlags|log.Lmicroseconds)

func discardLogger() Logger {
	return LoggerFunc(func(string, ...interface{}) {})
}
