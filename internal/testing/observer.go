package testing

import (
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/storm/internal/provisioning"
)

// RecordingObserver implements provisioning.Observer and records everything.
type RecordingObserver struct {
	mu       *sync.Mutex
	events   *[]provisioning.Event
	lines    *[]string
	statuses *[]Status
}

// Status is a recorded status line.
type Status struct {
	Level   provisioning.Level
	Message string
}

// NewRecordingObserver returns an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{
		mu:       &sync.Mutex{},
		events:   &[]provisioning.Event{},
		lines:    &[]string{},
		statuses: &[]Status{},
	}
}

func (o *RecordingObserver) Printf(format string, v ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.lines = append(*o.lines, fmt.Sprintf(format, v...))
}

func (o *RecordingObserver) Event(event provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.events = append(*o.events, event)
}

func (o *RecordingObserver) Status(level provisioning.Level, format string, v ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.statuses = append(*o.statuses, Status{Level: level, Message: fmt.Sprintf(format, v...)})
}

// WithFields shares the recording with the returned observer.
func (o *RecordingObserver) WithFields(map[string]string) provisioning.Observer {
	return o
}

// Events returns recorded events of type t.
func (o *RecordingObserver) Events(t provisioning.EventType) []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []provisioning.Event
	for _, e := range *o.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Statuses returns recorded status lines at level.
func (o *RecordingObserver) Statuses(level provisioning.Level) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, s := range *o.statuses {
		if s.Level == level {
			out = append(out, s.Message)
		}
	}
	return out
}

// Logged reports whether a log line contains substr.
func (o *RecordingObserver) Logged(substr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range *o.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
