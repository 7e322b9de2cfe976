package task

import (
	"os"
	"time"

	"github.com/fsimkovic/pyjob/internal/log"
)

// DefaultPollInterval is the pause between completion polls.
const DefaultPollInterval = 30 * time.Second

// WaitOptions tune the polling loop.
type WaitOptions struct {
	// Interval is the pause between polls. Defaults to DefaultPollInterval.
	Interval time.Duration

	// Monitor, when set, is invoked once per cycle.
	Monitor func()

	// Success, when set, is evaluated against each existing log file; a true
	// result kills the task early.
	Success func(logPath string) bool
}

// Wait blocks until the task completes. Each cycle evaluates the success
// predicate against the on-disk logs, invokes the monitor callback, then
// sleeps. Callbacks run on the caller's goroutine.
func (b *Base) Wait(opts *WaitOptions) error {
	if opts == nil {
		opts = &WaitOptions{}
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for !b.Completed() {
		if opts.Success != nil {
			for _, logPath := range b.Logs() {
				if _, err := os.Stat(logPath); err != nil {
					continue
				}
				if opts.Success(logPath) {
					log.Debugf("%s task [%s] succeeded, run log: %s",
						b.backend.Platform(), b.Pid(), logPath)
					if err := b.Kill(); err != nil {
						return err
					}
				}
			}
		}
		if opts.Monitor != nil {
			opts.Monitor()
		}
		time.Sleep(interval)
	}
	return nil
}
