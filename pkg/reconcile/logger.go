package reconcile

import (
	"log"
	"os"
)

// Logger receives the engine's processing log. Lines start with a level
// word ("info", "warn") followed by key=value pairs. *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

// defaultLogger is used when neither WithLogger nor ContextWithLogger set one.
var defaultLogger Logger = log.New(os.Stdout, "jirahooks/reconcile ", log.LstdFlags|log.Lmicroseconds)
