package workers

import (
	"log"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// LogFunc records an operator-facing sync event
type LogFunc func(level models.LogLevel, scope, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, scope, message string) {}

// LogSink is where sync events are persisted. *storage.SQLiteStore satisfies it.
type LogSink interface {
	Log(runID string, level models.LogLevel, scope, message string) error
}

// NewSinkLogger writes events to sink, tagged with the run in flight.
// runID may be nil.
func NewSinkLogger(sink LogSink, runID func() string) LogFunc {
	return func(level models.LogLevel, scope, message string) {
		id := ""
		if runID != nil {
			id = runID()
		}
		if err := sink.Log(id, level, scope, message); err != nil {
			log.Printf("Warning: failed to record sync log: %v", err)
		}
	}
}
