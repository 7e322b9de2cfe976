// Package cexec runs child processes synchronously, capturing their combined
// output and propagating interrupt signals.
package cexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
)

// exit is a seam so tests can observe the signal-triggered termination.
var exit = os.Exit

// Options configures a single Run invocation. The zero value runs the command
// in the current working directory with captured output.
type Options struct {
	// Context cancels the child process when done. Defaults to
	// context.Background().
	Context context.Context

	// Directory is the working directory of the child.
	Directory string

	// Stdin, when non-empty, is fed to the child on standard input.
	Stdin string

	// Stdout receives the combined stdout+stderr stream. When nil the output
	// is captured and returned by Run instead.
	Stdout io.Writer

	// PermitNonzero suppresses the error for non-zero exit codes.
	PermitNonzero bool

	// ForwardSignals relays SIGINT/SIGTERM received by this process to the
	// child while it runs.
	ForwardSignals bool
}

// Run executes cmd and returns its trimmed combined output. A missing
// executable yields core.ErrExecutableNotFound; a non-zero exit yields
// *core.ExecutionError unless PermitNonzero is set.
func Run(cmd []string, opts *Options) (string, error) {
	if len(cmd) == 0 {
		return "", fmt.Errorf("%w: empty command", core.ErrExecutableNotFound)
	}
	if opts == nil {
		opts = &Options{}
	}

	executable, err := exec.LookPath(cmd[0])
	if err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrExecutableNotFound, cmd[0])
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	log.Debugf("Executing %q", strings.Join(cmd, " "))

	c := exec.CommandContext(ctx, executable, cmd[1:]...)
	c.Dir = opts.Directory
	if opts.Stdin != "" {
		c.Stdin = strings.NewReader(opts.Stdin)
	}

	var buf bytes.Buffer
	if opts.Stdout != nil {
		c.Stdout = opts.Stdout
		c.Stderr = opts.Stdout
	} else {
		c.Stdout = &buf
		c.Stderr = &buf
	}

	if err := c.Start(); err != nil {
		return "", fmt.Errorf("pyjob: cannot start %s: %w", cmd[0], err)
	}

	var forwarded atomic.Int32
	if opts.ForwardSignals {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		done := make(chan struct{})
		defer func() {
			signal.Stop(sigCh)
			close(done)
		}()
		go func() {
			for {
				select {
				case sig := <-sigCh:
					if num, ok := sig.(syscall.Signal); ok {
						forwarded.Store(int32(num))
					}
					_ = c.Process.Signal(sig)
				case <-done:
					return
				}
			}
		}()
	}

	waitErr := c.Wait()
	stdout := strings.TrimSpace(buf.String())

	// A forwarded SIGINT/SIGTERM terminates this process with the same
	// signal code once the child has exited. The only out-of-band control
	// flow in the library.
	if num := forwarded.Load(); num != 0 {
		log.Infof("Forwarded signal %d to child, exiting", num)
		exit(int(num))
	}

	if waitErr == nil {
		return stdout, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if opts.PermitNonzero {
			log.Debugf("Ignoring non-zero returncode %d for %q", exitErr.ExitCode(), strings.Join(cmd, " "))
			return stdout, nil
		}
		return stdout, &core.ExecutionError{Cmd: cmd, ExitCode: exitErr.ExitCode()}
	}
	return stdout, fmt.Errorf("pyjob: execution of %s failed: %w", cmd[0], waitErr)
}

// IsExe reports whether path is a regular file with an executable bit set.
func IsExe(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
