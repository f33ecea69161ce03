// Package report carries warnings and mutation events out of the storage
// components. Components never log on their own; the caller decides where
// warnings and events end up.
package report

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Container operations recorded as events.
const (
	OpCreate  = "create"
	OpAdd     = "add"
	OpAppend  = "append"
	OpUpdate  = "update"
	OpRemove  = "remove"
	OpExtract = "extract"
)

// Event describes one completed container mutation.
type Event struct {
	Time      time.Time `json:"time"`
	Container string    `json:"container"`
	Op        string    `json:"op"`
	Member    string    `json:"member,omitempty"`
	Size      int64     `json:"size"`
}

// Reporter receives non-fatal warnings and mutation events.
type Reporter interface {
	// Warn reports a recoverable condition such as a missing file.
	// keysAndValues alternate between string keys and arbitrary values.
	Warn(msg string, keysAndValues ...any)

	// Event reports a completed mutation.
	Event(e Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Warn(string, ...any) {}
func (Nop) Event(Event)         {}

// Zap writes warnings at warn level and events at debug level.
type Zap struct {
	log *zap.SugaredLogger
}

// NewZap returns a Reporter backed by the given logger.
// A nil logger yields a no-op zap logger.
func NewZap(l *zap.Logger) *Zap {
	if l == nil {
		l = zap.NewNop()
	}
	return &Zap{log: l.Sugar()}
}

func (z *Zap) Warn(msg string, keysAndValues ...any) {
	z.log.Warnw(msg, keysAndValues...)
}

func (z *Zap) Event(e Event) {
	z.log.Debugw("container: "+e.Op,
		"container", e.Container,
		"member", e.Member,
		"size", e.Size,
	)
}

// Warning is a single warning captured by a Recorder.
type Warning struct {
	Msg    string
	Fields []any
}

// Recorder keeps everything it receives in memory. Used by tests and by
// callers that want to surface warnings after an operation completes.
type Recorder struct {
	mu       sync.Mutex
	warnings []Warning
	events   []Event
}

func (r *Recorder) Warn(msg string, keysAndValues ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Warning{Msg: msg, Fields: keysAndValues})
}

func (r *Recorder) Event(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Warnings returns a copy of the recorded warnings.
func (r *Recorder) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = nil
	r.events = nil
}
