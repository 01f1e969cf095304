package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Recorder is a logger that keeps every entry at debug and above for
// assertions.
type Recorder struct {
	Logger   *zap.Logger
	observed *observer.ObservedLogs
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	core, observed := observer.New(zapcore.DebugLevel)
	return &Recorder{Logger: zap.New(core), observed: observed}
}

// Entries returns the entries whose message contains msg.
func (r *Recorder) Entries(msg string) []observer.LoggedEntry {
	return r.observed.FilterMessageSnippet(msg).All()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (r *Recorder) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range r.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %s entry containing %q in %d entries", level, msg, r.observed.Len())
}

// Field returns the value of key on the first entry containing msg.
func (r *Recorder) Field(msg, key string) (any, bool) {
	for _, e := range r.Entries(msg) {
		if v, ok := e.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}
