package provisioning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/imamik/storm/internal/config"
)

// MockObserver is a test implementation of Observer that records events.
type MockObserver struct {
	mu       *sync.Mutex
	events   *[]Event
	messages *[]string
	statuses *[]string
	fields   map[string]string
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		mu:       &sync.Mutex{},
		events:   &[]Event{},
		messages: &[]string{},
		statuses: &[]string{},
		fields:   map[string]string{},
	}
}

func (m *MockObserver) Printf(format string, v ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.messages = append(*m.messages, fmt.Sprintf(format, v...))
}

func (m *MockObserver) Event(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.events = append(*m.events, event)
}

func (m *MockObserver) Status(_ Level, format string, v ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.statuses = append(*m.statuses, fmt.Sprintf(format, v...))
}

func (m *MockObserver) WithFields(fields map[string]string) Observer {
	cp := *m
	cp.fields = make(map[string]string, len(m.fields)+len(fields))
	for k, v := range m.fields {
		cp.fields[k] = v
	}
	for k, v := range fields {
		cp.fields[k] = v
	}
	return &cp
}

func (m *MockObserver) Events(t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range *m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockObserver) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), *m.messages...)
}

func (m *MockObserver) Statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), *m.statuses...)
}

func newTestContext(t *testing.T) (*Context, *MockObserver) {
	t.Helper()
	observer := NewMockObserver()
	return &Context{
		Context:  context.Background(),
		Config:   &config.Config{},
		Observer: observer,
		Timeouts: &config.Timeouts{},
		Out:      io.Discard,
		batch:    &sync.Mutex{},
	}, observer
}

func newBufferedContext(t *testing.T) (*Context, *bytes.Buffer) {
	t.Helper()
	ctx, _ := newTestContext(t)
	var buf bytes.Buffer
	ctx.Out = &buf
	return ctx, &buf
}
