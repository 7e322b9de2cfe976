package cluster

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/script"
	"github.com/fsimkovic/pyjob/internal/task"
)

const (
	lsfPlatform       = "lsf"
	lsfDirective      = "#BSUB"
	lsfArrayIndexVar  = "$LSB_JOBINDEX"
	lsfArrayOffset    = 1 // bsub array indices are 0-based in this composition
	lsfScriptPrefix  = "lsf_"
	lsfStatusExec    = "bjobs"
)

// LSFTask submits through IBM Spectrum LSF. The runscript is fed to bsub on
// standard input.
type LSFTask struct {
	*base
}

// NewLSF constructs an LSF task and verifies that bjobs is on PATH.
func NewLSF(scripts interface{}, opts *Options) (*LSFTask, error) {
	b, err := newBase(lsfPlatform, scripts, opts)
	if err != nil {
		return nil, err
	}
	t := &LSFTask{base: b}
	t.Bind(t)
	if err := ensureExecAvailable(lsfStatusExec); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit writes the runscript and pipes it to bsub. The pid is the numeric
// token between angle brackets in the confirmation line.
func (t *LSFTask) Submit() error {
	rs, err := t.createRunscript()
	if err != nil {
		return err
	}
	if err := rs.Write(); err != nil {
		return err
	}
	t.runscript = rs

	stdout, err := runCommand([]string{"bsub"}, &cexec.Options{
		Stdin:     rs.String(),
		Directory: t.Directory(),
	})
	if err != nil {
		return err
	}
	pid, err := parseLSFSubmission(stdout)
	if err != nil {
		return err
	}
	t.SetPid(pid)
	log.Debugf("LSF task [%s] submission script is %s", pid, rs.Path())
	return nil
}

// parseLSFSubmission extracts the job number from a line of the form
// "Job <12345> is submitted to default queue <normal>.".
func parseLSFSubmission(stdout string) (string, error) {
	fields := strings.Fields(stdout)
	if len(fields) >= 2 {
		token := fields[1]
		if strings.HasPrefix(token, "<") && strings.HasSuffix(token, ">") {
			return token[1 : len(token)-1], nil
		}
	}
	return "", fmt.Errorf("pyjob: cannot parse bsub response: %q", stdout)
}

// Info reports the task as running until bjobs says otherwise.
func (t *LSFTask) Info() task.Info {
	pid := t.Pid()
	if pid == "" {
		return task.Info{}
	}
	stdout, err := runCommand([]string{lsfStatusExec, "-l", pid}, &cexec.Options{PermitNonzero: true})
	if err != nil {
		return task.Info{}
	}
	if strings.Contains(stdout, "Done successfully") {
		return task.Info{}
	}
	return task.Info{"job_number": pid, "status": "Running"}
}

// Kill terminates the submission with bkill. A termination reported as "in
// progress" is retried in background mode with a grace period. Responses
// other than the recognized benign ones fail with core.ErrCannotDelete.
func (t *LSFTask) Kill() error {
	return t.killOnce(func() error {
		pid := t.Pid()
		stdout, err := runCommand([]string{"bkill", pid}, &cexec.Options{PermitNonzero: true})
		if err != nil {
			if errors.Is(err, core.ErrExecutableNotFound) {
				return nil
			}
			return err
		}
		if strings.Contains(stdout, "is in progress") {
			stdout, _ = runCommand([]string{"bkill", "-b", pid}, &cexec.Options{PermitNonzero: true})
			sleep(10 * time.Second)
		}
		for _, benign := range []string{"has already finished", "is being terminated", "is in progress"} {
			if strings.Contains(stdout, benign) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrCannotDelete, stdout)
	})
}

// createRunscript composes the bsub submission script.
func (t *LSFTask) createRunscript() (*script.Script, error) {
	rs := t.newRunscript(lsfScriptPrefix)
	scripts := t.Scripts()

	if len(t.opts.Dependency) > 0 {
		deps := make([]string, len(t.opts.Dependency))
		for i, d := range t.opts.Dependency {
			deps[i] = fmt.Sprintf("deps(%s)", d)
		}
		rs.Append(directiveLine(lsfDirective, "-w "+strings.Join(deps, " && ")))
	}
	rs.Append(directiveLine(lsfDirective, fmt.Sprintf("-cwd %s", t.Directory())))
	if t.opts.Priority != 0 {
		rs.Append(directiveLine(lsfDirective, fmt.Sprintf("-sp %d", t.opts.Priority)))
	}
	if t.opts.Queue != "" {
		rs.Append(directiveLine(lsfDirective, fmt.Sprintf("-q %s", t.opts.Queue)))
	}
	if t.opts.Runtime > 0 {
		rs.Append(directiveLine(lsfDirective, fmt.Sprintf("-W %d", t.opts.Runtime)))
	}
	if t.opts.Shell != "" {
		rs.Append(directiveLine(lsfDirective, fmt.Sprintf("-L %s", t.opts.Shell)))
	}
	rs.Append(directiveLine(lsfDirective, fmt.Sprintf(`-R "span[ptile=%d]"`, t.Processes())))
	if len(t.opts.Extra) > 0 {
		rs.Append(directiveLine(lsfDirective, strings.Join(t.opts.Extra, " ")))
	}

	if len(scripts) > 1 {
		jobsFile, err := t.writeJobsFile(rs)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(lsfDirective,
			fmt.Sprintf("-J %s[1-%d]%%%d", t.opts.Name, len(scripts), t.maxArraySize())))
		rs.Append(directiveLine(lsfDirective, "-o "+rs.Log()))
		ext, err := t.arrayExtension(lsfArrayIndexVar, jobsFile, lsfArrayOffset)
		if err != nil {
			return nil, err
		}
		rs.Append(ext...)
	} else {
		rs.Append(directiveLine(lsfDirective, "-J "+t.opts.Name))
		rs.Append(directiveLine(lsfDirective, "-o "+t.Logs()[0]))
		rs.Append(scripts[0])
	}
	return rs, nil
}
