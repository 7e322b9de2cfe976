// Package task defines the uniform task-lifecycle abstraction shared by every
// execution backend.
package task

import (
	"sync"

	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/metrics"
	"github.com/fsimkovic/pyjob/internal/script"
)

// Info describes an active submission. An empty Info means the backend holds
// no record of the task. A non-empty Info always carries "job_number" and
// "status" keys.
type Info map[string]string

// Task is the uniform lifecycle contract: New -> (Run) -> Running ->
// (Kill | natural finish) -> Finished -> (Close) -> Closed.
type Task interface {
	Run() error
	Wait(opts *WaitOptions) error
	Kill() error
	Close() error
	Info() Info
	Completed() bool
	Pid() string
	Scripts() []string
	Logs() []string
	AddScript(input interface{}) error
}

// Backend is the per-platform surface behind a Task. Implementations set the
// pid during Submit and keep Kill and Release idempotent.
type Backend interface {
	Platform() string
	Submit() error
	Info() Info
	Kill() error
	Release() error
}

// Base carries the fields and lifecycle logic common to every backend.
// Concrete tasks embed *Base and bind themselves as its Backend.
type Base struct {
	backend   Backend
	collector *script.Collector

	directory  string
	nprocesses int

	mu     sync.Mutex
	locked bool
	closed bool

	pidMu sync.Mutex
	pid   string
}

// NewBase builds the shared task state from any accepted script input shape
// and resolved options.
func NewBase(scripts interface{}, opts *Options) (*Base, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.applyDefaults()

	collector, err := asCollector(scripts)
	if err != nil {
		return nil, err
	}
	return &Base{
		collector:  collector,
		directory:  opts.Directory,
		nprocesses: opts.Processes,
	}, nil
}

func asCollector(scripts interface{}) (*script.Collector, error) {
	if c, ok := scripts.(*script.Collector); ok {
		return c, nil
	}
	return script.NewCollector(scripts)
}

// Bind attaches the concrete backend. Called once by the concrete constructor.
func (b *Base) Bind(backend Backend) {
	b.backend = backend
}

// Directory returns the task working directory.
func (b *Base) Directory() string {
	return b.directory
}

// Processes returns the requested degree of parallelism.
func (b *Base) Processes() int {
	return b.nprocesses
}

// Pid returns the backend-assigned identifier, or "" before Run.
func (b *Base) Pid() string {
	b.pidMu.Lock()
	defer b.pidMu.Unlock()
	return b.pid
}

// SetPid records the backend-assigned identifier.
func (b *Base) SetPid(pid string) {
	b.pidMu.Lock()
	defer b.pidMu.Unlock()
	b.pid = pid
}

// Locked reports whether the task has been locked by Run or Close.
func (b *Base) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Scripts returns the collected script paths.
func (b *Base) Scripts() []string {
	return b.collector.Paths()
}

// Logs returns the log path for every collected script.
func (b *Base) Logs() []string {
	return b.collector.Logs()
}

// Collector exposes the owned script collection to backends.
func (b *Base) Collector() *script.Collector {
	return b.collector
}

// AddScript appends further scripts; rejected once the task is locked.
func (b *Base) AddScript(input interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return core.ErrTaskLocked
	}
	return b.collector.Add(input)
}

// Run starts the task. It dumps the collected scripts, submits through the
// backend and locks the task. At most one call succeeds; a locked task fails
// with core.ErrTaskLocked, an empty collection with core.ErrNoScripts.
func (b *Base) Run() error {
	b.mu.Lock()
	if b.locked {
		b.mu.Unlock()
		return core.ErrTaskLocked
	}
	if b.collector.Len() < 1 {
		b.mu.Unlock()
		return core.ErrNoScripts
	}
	b.mu.Unlock()

	if err := b.collector.Dump(); err != nil {
		return err
	}
	if err := b.backend.Submit(); err != nil {
		return err
	}
	b.lock()

	metrics.TasksStartedTotal.WithLabelValues(b.backend.Platform()).Inc()
	log.Debugf("Started execution of %s task [%s]", b.backend.Platform(), b.Pid())
	return nil
}

// lock flags the task and its collector against further mutation.
func (b *Base) lock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = true
	b.collector.Lock()
}

// Info returns the backend's record of the task, or an empty Info when the
// task never ran.
func (b *Base) Info() Info {
	if b.Pid() == "" {
		return Info{}
	}
	return b.backend.Info()
}

// Completed reports lifecycle completion: the task is locked and the backend
// holds no active record.
func (b *Base) Completed() bool {
	return b.Locked() && len(b.Info()) == 0
}

// Kill terminates the submission. Idempotent; a task that never ran is a
// no-op.
func (b *Base) Kill() error {
	return b.backend.Kill()
}

// Close waits for natural termination, then releases backend resources.
// Idempotent; intended for defer at scope exit.
func (b *Base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	b.lock()

	if err := b.Wait(nil); err != nil {
		return err
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.backend.Release()
}
