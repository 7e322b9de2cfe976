// Package local executes tasks on the local host through a bounded pool of
// worker goroutines, each running scripts as OS child processes.
package local

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/metrics"
	"github.com/fsimkovic/pyjob/internal/task"
)

// Platform is the factory tag of this backend.
const Platform = "local"

// sentinel is the queue value instructing a worker to exit. One is enqueued
// per worker so none blocks forever.
const sentinel = ""

// Task executes every collected script locally, at most Processes() at a
// time, writing each script's combined stdout+stderr to its sibling .log.
type Task struct {
	*task.Base

	chdir         bool
	permitNonzero bool

	queue      chan string
	killSwitch atomic.Bool
	alive      atomic.Int32
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	killMu sync.Mutex
	killed bool
}

// New constructs a local task. Requesting more processes than CPUs is
// tolerated with a warning.
func New(scripts interface{}, opts *task.Options) (*Task, error) {
	if opts == nil {
		opts = &task.Options{}
	}
	base, err := task.NewBase(scripts, opts)
	if err != nil {
		return nil, err
	}
	if base.Processes() > runtime.NumCPU() {
		log.Warn("More processes requested than available CPUs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		Base:          base,
		chdir:         opts.Chdir,
		permitNonzero: opts.PermitNonzero,
		ctx:           ctx,
		cancel:        cancel,
	}
	t.Bind(t)
	return t, nil
}

// Platform returns the factory tag.
func (t *Task) Platform() string {
	return Platform
}

// Submit spawns the workers, feeds the queue in collector order, appends one
// sentinel per worker and closes the queue. The trailing sleep lets an
// immediate Kill observe every worker alive.
func (t *Task) Submit() error {
	scripts := t.Base.Scripts()
	t.queue = make(chan string, len(scripts)+t.Processes())

	for i := 0; i < t.Processes(); i++ {
		t.wg.Add(1)
		t.alive.Add(1)
		go t.worker()
	}
	for _, path := range scripts {
		t.queue <- path
	}
	for i := 0; i < t.Processes(); i++ {
		t.queue <- sentinel
	}
	close(t.queue)

	t.SetPid(task.NewUID())
	time.Sleep(100 * time.Millisecond)
	return nil
}

// worker dequeues until it sees a sentinel. Once the kill switch is set it
// drains pending scripts without executing them.
func (t *Task) worker() {
	defer t.wg.Done()
	defer t.alive.Add(-1)
	for path := range t.queue {
		if path == sentinel {
			return
		}
		if t.killSwitch.Load() {
			continue
		}
		t.execute(path)
	}
}

// execute runs one script, streaming its combined output to the sibling log
// file. Each log has exactly one writer.
func (t *Task) execute(path string) {
	directory := t.Directory()
	if t.chdir {
		directory = filepath.Dir(path)
	}

	logPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".log"
	f, err := os.Create(logPath)
	if err != nil {
		log.WithError(err).Errorf("cannot create log file %s", logPath)
		metrics.ScriptsExecutedTotal.WithLabelValues("error").Inc()
		return
	}
	defer f.Close()

	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	start := time.Now()
	_, err = cexec.Run([]string{path}, &cexec.Options{
		Context:        t.ctx,
		Directory:      directory,
		Stdout:         f,
		PermitNonzero:  t.permitNonzero,
		ForwardSignals: true,
	})
	metrics.ScriptDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ScriptsExecutedTotal.WithLabelValues("error").Inc()
		log.WithError(err).Errorf("script %s failed", path)
		return
	}
	metrics.ScriptsExecutedTotal.WithLabelValues("ok").Inc()
}

// Info reports the task as running while any worker is alive.
func (t *Task) Info() task.Info {
	if t.alive.Load() > 0 {
		return task.Info{"job_number": t.Pid(), "status": "Running"}
	}
	return task.Info{}
}

// Kill stops the pool: set the kill switch, join every worker so running
// children finish and pending ones are drained, then cancel the context to
// force-terminate any straggler. Idempotent and safe from any goroutine.
func (t *Task) Kill() error {
	return t.kill(true)
}

// kill implements Kill; early marks a termination before natural completion.
func (t *Task) kill(early bool) error {
	t.killMu.Lock()
	defer t.killMu.Unlock()
	if t.killed {
		return nil
	}
	if t.Pid() == "" {
		return nil
	}

	t.killSwitch.Store(true)
	t.wg.Wait()
	t.cancel()

	t.killed = true
	if early {
		metrics.TasksKilledTotal.WithLabelValues(Platform).Inc()
	}
	log.Debugf("Terminated task: %s", t.Pid())
	return nil
}

// Close lets every worker finish naturally, then stops the pool to release
// the queue and context. Idempotent.
func (t *Task) Close() error {
	t.killMu.Lock()
	if t.killed {
		t.killMu.Unlock()
		return nil
	}
	t.killMu.Unlock()

	t.wg.Wait()
	if t.Pid() != "" {
		metrics.TasksCompletedTotal.WithLabelValues(Platform).Inc()
	}
	return t.kill(false)
}

// Release satisfies task.Backend.
func (t *Task) Release() error {
	return t.kill(false)
}
