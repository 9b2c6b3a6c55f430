package testing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
)

// ErrInjected is returned by FakeAdapter operations configured to fail.
var ErrInjected = errors.New("injected failure")

// FakeAdapter is an in-memory cloud.Adapter. Created instances show up in
// ListInstances until destroyed. It is safe for concurrent use.
type FakeAdapter struct {
	provider fleet.Provider

	// Delay is how long CreateInstance and DestroyInstance take.
	Delay time.Duration

	mu          sync.Mutex
	instances   []fleet.Listing
	failCreate  map[string]bool
	failOpen    map[string]bool
	failDestroy map[string]bool
	created     []string
	destroyed   []string
	stopped     []string
	opened      map[string][]config.Port
	specs       map[string]cloud.CreateSpec
	running     int
	peak        int
	seq         int
}

// NewFakeAdapter returns an empty FakeAdapter for provider p.
func NewFakeAdapter(p fleet.Provider) *FakeAdapter {
	return &FakeAdapter{
		provider:    p,
		failCreate:  map[string]bool{},
		failOpen:    map[string]bool{},
		failDestroy: map[string]bool{},
		opened:      map[string][]config.Port{},
		specs:       map[string]cloud.CreateSpec{},
	}
}

// Seed adds existing instances.
func (f *FakeAdapter) Seed(names ...string) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.instances = append(f.instances, fleet.Listing{Name: name, Address: f.nextAddress(), Provider: f.provider, State: "Running"})
	}
	return f
}

// FailCreate makes CreateInstance fail for name after the machine was partially created.
func (f *FakeAdapter) FailCreate(names ...string) *FakeAdapter {
	return f.mark(f.failCreate, names)
}

// FailCreateAny makes every CreateInstance fail.
func (f *FakeAdapter) FailCreateAny() *FakeAdapter {
	return f.mark(f.failCreate, []string{"*"})
}

// FailOpenPorts makes OpenPorts fail for name.
func (f *FakeAdapter) FailOpenPorts(names ...string) *FakeAdapter {
	return f.mark(f.failOpen, names)
}

// FailDestroy makes DestroyInstance fail for name.
func (f *FakeAdapter) FailDestroy(names ...string) *FakeAdapter {
	return f.mark(f.failDestroy, names)
}

func (f *FakeAdapter) mark(set map[string]bool, names []string) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		set[n] = true
	}
	return f
}

func (f *FakeAdapter) nextAddress() string {
	f.seq++
	return fmt.Sprintf("10.%d.0.%d", len(f.provider), f.seq)
}

func (f *FakeAdapter) Provider() fleet.Provider { return f.provider }

func (f *FakeAdapter) CreateInstance(ctx context.Context, spec cloud.CreateSpec) (string, error) {
	f.enter()
	defer f.leave()

	if err := f.sleep(ctx); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec.Name)
	f.specs[spec.Name] = spec
	addr := f.nextAddress()
	f.instances = append(f.instances, fleet.Listing{Name: spec.Name, Address: addr, Provider: f.provider, State: "Running"})

	if f.failCreate[spec.Name] || f.failCreate["*"] {
		return "", fmt.Errorf("create %s: %w", spec.Name, ErrInjected)
	}
	return addr, nil
}

func (f *FakeAdapter) OpenPorts(_ context.Context, inst fleet.Instance, ports []config.Port) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen[inst.Name] {
		return fmt.Errorf("open ports on %s: %w", inst.Name, ErrInjected)
	}
	f.opened[inst.Name] = append(f.opened[inst.Name], ports...)
	return nil
}

func (f *FakeAdapter) ListInstances(context.Context) ([]fleet.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.instances), nil
}

func (f *FakeAdapter) DestroyInstance(ctx context.Context, name string) error {
	if err := f.sleep(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, name)
	if f.failDestroy[name] {
		return fmt.Errorf("destroy %s: %w", name, ErrInjected)
	}
	f.instances = slices.DeleteFunc(f.instances, func(l fleet.Listing) bool { return l.Name == name })
	return nil
}

func (f *FakeAdapter) StopInstance(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	for i := range f.instances {
		if f.instances[i].Name == name {
			f.instances[i].State = "Stopped"
		}
	}
	return nil
}

func (f *FakeAdapter) sleep(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeAdapter) enter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
}

func (f *FakeAdapter) leave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running--
}

// Created returns the names passed to CreateInstance.
func (f *FakeAdapter) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.created)
}

// Destroyed returns the names passed to DestroyInstance.
func (f *FakeAdapter) Destroyed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.destroyed)
}

// Stopped returns the names passed to StopInstance.
func (f *FakeAdapter) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stopped)
}

// Opened returns the ports opened on name.
func (f *FakeAdapter) Opened(name string) []config.Port {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.opened[name])
}

// Spec returns the CreateSpec name was created with.
func (f *FakeAdapter) Spec(name string) (cloud.CreateSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.specs[name]
	return s, ok
}

// Names returns the names of existing instances.
func (f *FakeAdapter) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.instances))
	for _, l := range f.instances {
		names = append(names, l.Name)
	}
	return names
}

// Peak returns the highest number of concurrent CreateInstance calls.
func (f *FakeAdapter) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
