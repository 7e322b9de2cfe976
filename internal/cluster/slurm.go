package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/script"
	"github.com/fsimkovic/pyjob/internal/task"
)

const (
	slurmPlatform      = "slurm"
	slurmDirective     = "#SBATCH"
	slurmArrayIndexVar = "$SLURM_ARRAY_TASK_ID"
	slurmArrayOffset   = 0
	slurmScriptPrefix  = "slurm_"
	slurmStatusExec    = "squeue"
)

// SlurmTask submits through Slurm via sbatch.
type SlurmTask struct {
	*base
}

// NewSlurm constructs a Slurm task and verifies that squeue is on PATH.
func NewSlurm(scripts interface{}, opts *Options) (*SlurmTask, error) {
	b, err := newBase(slurmPlatform, scripts, opts)
	if err != nil {
		return nil, err
	}
	t := &SlurmTask{base: b}
	t.Bind(t)
	if err := ensureExecAvailable(slurmStatusExec); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit writes the runscript and hands its path to sbatch. The pid is the
// trailing token of "Submitted batch job 12345".
func (t *SlurmTask) Submit() error {
	rs, err := t.createRunscript()
	if err != nil {
		return err
	}
	if err := rs.Write(); err != nil {
		return err
	}
	t.runscript = rs

	stdout, err := runCommand([]string{"sbatch", rs.Path()}, &cexec.Options{Directory: t.Directory()})
	if err != nil {
		return err
	}
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return fmt.Errorf("pyjob: cannot parse sbatch response: %q", stdout)
	}
	pid := fields[len(fields)-1]
	t.SetPid(pid)
	log.Debugf("Slurm task [%s] submission script is %s", pid, rs.Path())
	return nil
}

// Info reports the task as running while squeue still lists the pid. An
// unknown job makes squeue exit non-zero, which reads as finished.
func (t *SlurmTask) Info() task.Info {
	pid := t.Pid()
	if pid == "" {
		return task.Info{}
	}
	stdout, err := runCommand([]string{slurmStatusExec, "-j", pid}, nil)
	if err != nil {
		return task.Info{}
	}
	// A header-only response means the job left the queue.
	if len(strings.Split(strings.TrimSpace(stdout), "\n")) < 2 {
		return task.Info{}
	}
	return task.Info{"job_number": pid, "status": "Running"}
}

// Kill terminates the submission with scancel.
func (t *SlurmTask) Kill() error {
	return t.killOnce(func() error {
		_, err := runCommand([]string{"scancel", t.Pid()}, nil)
		if errors.Is(err, core.ErrExecutableNotFound) {
			return nil
		}
		return err
	})
}

// createRunscript composes the sbatch submission script.
func (t *SlurmTask) createRunscript() (*script.Script, error) {
	rs := t.newRunscript(slurmScriptPrefix)
	scripts := t.Scripts()

	rs.Append(directiveLine(slurmDirective, "--export=ALL"))
	rs.Append(directiveLine(slurmDirective, "--job-name="+t.opts.Name))
	if len(t.opts.Dependency) > 0 {
		rs.Append(directiveLine(slurmDirective,
			"--depend=afterok:"+strings.Join(t.opts.Dependency, ":")))
	}
	if t.opts.Queue != "" {
		rs.Append(directiveLine(slurmDirective, "-p "+t.opts.Queue))
	}
	rs.Append(directiveLine(slurmDirective, fmt.Sprintf("-n %d", t.Processes())))
	rs.Append(directiveLine(slurmDirective, "--workdir="+t.Directory()))
	if t.opts.Runtime > 0 {
		rs.Append(directiveLine(slurmDirective, fmt.Sprintf("-t %d", t.opts.Runtime)))
	}
	if len(t.opts.Extra) > 0 {
		rs.Append(directiveLine(slurmDirective, strings.Join(t.opts.Extra, " ")))
	}

	if len(scripts) > 1 {
		jobsFile, err := t.writeJobsFile(rs)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(slurmDirective,
			fmt.Sprintf("--array=1-%d%%%d", len(scripts), t.maxArraySize())))
		rs.Append(directiveLine(slurmDirective, "-o "+rs.Log()))
		ext, err := t.arrayExtension(slurmArrayIndexVar, jobsFile, slurmArrayOffset)
		if err != nil {
			return nil, err
		}
		rs.Append(ext...)
	} else {
		rs.Append(directiveLine(slurmDirective, "-o "+t.Logs()[0]))
		rs.Append(scripts[0])
	}
	return rs, nil
}
