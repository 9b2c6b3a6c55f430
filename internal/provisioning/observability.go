package provisioning

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/storm/internal/ui/style"
)

// Logger is the minimal printf-style sink.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Observer defines the interface for structured observability during provisioning.
type Observer interface {
	Logger

	// Event emits a structured event
	Event(event Event)

	// Status prints a colorized status line for the operator
	Status(level Level, format string, v ...interface{})

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Level selects the color and marker of a status line.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	Phase     string            // Phase name (e.g., "launch discovery", "bootstrap")
	Message   string            // Human-readable message
	Resource  string            // Instance name if applicable
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	// EventPhaseStarted indicates a provisioning phase has started.
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseCompleted indicates a provisioning phase completed successfully.
	EventPhaseCompleted EventType = "phase.completed"
	// EventPhaseFailed indicates a provisioning phase failed.
	EventPhaseFailed EventType = "phase.failed"

	// EventTaskFailed indicates one task of a batch failed.
	EventTaskFailed EventType = "task.failed"
	// EventTaskTimedOut indicates a task was still running at the batch deadline.
	EventTaskTimedOut EventType = "task.timedout"

	// EventInstanceCreated indicates an instance was created and reachable.
	EventInstanceCreated EventType = "instance.created"
	// EventInstanceCompensated indicates a failed create was rolled back.
	EventInstanceCompensated EventType = "instance.compensated"
	// EventInstanceDestroyed indicates an instance was removed.
	EventInstanceDestroyed EventType = "instance.destroyed"

	// EventValidationWarning indicates a validation warning.
	EventValidationWarning EventType = "validation.warning"
)

// ConsoleObserver implements Observer using the standard log package for log
// lines and w for status lines.
type ConsoleObserver struct {
	mu            *sync.Mutex
	w             io.Writer
	color         bool
	contextFields map[string]string
}

// NewConsoleObserver creates a console observer printing status lines to stdout.
func NewConsoleObserver(color bool) *ConsoleObserver {
	return NewConsoleObserverTo(os.Stdout, color)
}

// NewConsoleObserverTo creates a console observer printing status lines to w.
func NewConsoleObserverTo(w io.Writer, color bool) *ConsoleObserver {
	return &ConsoleObserver{
		mu:            &sync.Mutex{},
		w:             w,
		color:         color,
		contextFields: make(map[string]string),
	}
}

// Printf implements Logger.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer interface.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Merge context fields
	if event.Fields == nil {
		event.Fields = make(map[string]string)
	}
	for k, v := range o.contextFields {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}

	log.Print(formatEvent(event))
}

// Status implements Observer interface.
func (o *ConsoleObserver) Status(level Level, format string, v ...interface{}) {
	mark, s := levelStyle(level)
	line := style.Render(o.color, s, mark+" "+fmt.Sprintf(format, v...))

	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, line)
}

// WithFields implements Observer interface.
func (o *ConsoleObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &ConsoleObserver{
		mu:            o.mu,
		w:             o.w,
		color:         o.color,
		contextFields: newFields,
	}
}

func levelStyle(level Level) (string, lipgloss.Style) {
	switch level {
	case LevelSuccess:
		return style.CheckMark, style.Success
	case LevelWarning:
		return style.WarnMark, style.Warning
	case LevelError:
		return style.CrossMark, style.Failure
	default:
		return style.InfoMark, style.Info
	}
}

// formatEvent formats an event for console output.
func formatEvent(event Event) string {
	var parts []string

	parts = append(parts, string(event.Type))

	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}

	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", event.Resource))
	}

	parts = append(parts, event.Message)

	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// Helper functions for common events

// LogPhaseStart logs a phase start event.
func LogPhaseStart(observer Observer, phase string) {
	observer.Event(Event{
		Type:    EventPhaseStarted,
		Phase:   phase,
		Message: "starting",
	})
}

// LogPhaseComplete logs a phase completion event.
func LogPhaseComplete(observer Observer, phase string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventPhaseCompleted,
		Phase:   phase,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogPhaseFailed logs a phase failure event.
func LogPhaseFailed(observer Observer, phase string, err error) {
	observer.Event(Event{
		Type:    EventPhaseFailed,
		Phase:   phase,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogInstanceCreated logs a successful create.
func LogInstanceCreated(observer Observer, phase, name, address string) {
	observer.Event(Event{
		Type:     EventInstanceCreated,
		Phase:    phase,
		Resource: name,
		Message:  "instance created",
		Fields:   map[string]string{"address": address},
	})
}

// LogInstanceCompensated logs the rollback of a failed create.
func LogInstanceCompensated(observer Observer, phase, name string, destroyErr error) {
	msg := "failed create rolled back"
	if destroyErr != nil {
		msg = fmt.Sprintf("rollback of failed create failed: %v", destroyErr)
	}
	observer.Event(Event{
		Type:     EventInstanceCompensated,
		Phase:    phase,
		Resource: name,
		Message:  msg,
	})
}

// LogInstanceDestroyed logs a removed instance.
func LogInstanceDestroyed(observer Observer, phase, name string) {
	observer.Event(Event{
		Type:     EventInstanceDestroyed,
		Phase:    phase,
		Resource: name,
		Message:  "instance removed",
	})
}

// LogWarning logs a validation warning and shows it to the operator.
func LogWarning(observer Observer, phase, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	observer.Event(Event{
		Type:    EventValidationWarning,
		Phase:   phase,
		Message: msg,
	})
	observer.Status(LevelWarning, "%s", msg)
}
