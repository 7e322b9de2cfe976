package cluster

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/script"
	"github.com/fsimkovic/pyjob/internal/task"
)

const (
	pbsPlatform      = "pbs"
	pbsDirective     = "#PBS"
	pbsArrayIndexVar = "$PBS_ARRAYID"
	pbsArrayOffset   = 0
	pbsScriptPrefix  = "pbs_"
	pbsStatusExec    = "qstat"
)

var (
	pbsHeaderSplit = regexp.MustCompile(`:\s+`)
	pbsFieldSplit  = regexp.MustCompile(`\s+=\s+`)
)

// PBSTask submits through PBS/Torque via qsub.
type PBSTask struct {
	*base
}

// NewPBS constructs a PBS task and verifies that qstat is on PATH.
func NewPBS(scripts interface{}, opts *Options) (*PBSTask, error) {
	return newPBSLike(pbsPlatform, scripts, opts)
}

// newPBSLike builds the shared PBS composition under the given platform tag;
// Torque reuses it verbatim.
func newPBSLike(platform string, scripts interface{}, opts *Options) (*PBSTask, error) {
	b, err := newBase(platform, scripts, opts)
	if err != nil {
		return nil, err
	}
	t := &PBSTask{base: b}
	t.Bind(t)
	if err := ensureExecAvailable(pbsStatusExec); err != nil {
		return nil, err
	}
	return t, nil
}

// Submit writes the runscript and hands its path to qsub. The pid is the
// leading integer of the returned job identifier ("1234.host" yields "1234").
func (t *PBSTask) Submit() error {
	rs, err := t.createRunscript()
	if err != nil {
		return err
	}
	if err := rs.Write(); err != nil {
		return err
	}
	t.runscript = rs

	stdout, err := runCommand([]string{"qsub", rs.Path()}, &cexec.Options{Directory: t.Directory()})
	if err != nil {
		return err
	}
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return fmt.Errorf("pyjob: cannot parse qsub response: %q", stdout)
	}
	pid := strings.SplitN(fields[0], ".", 2)[0]
	t.SetPid(pid)
	log.Debugf("PBS task [%s] submission script is %s", pid, rs.Path())
	return nil
}

// Info parses the qstat -f key=value block. An unknown or finished job yields
// an empty Info.
func (t *PBSTask) Info() task.Info {
	pid := t.Pid()
	if pid == "" {
		return task.Info{}
	}
	stdout, err := runCommand([]string{pbsStatusExec, "-f", pid}, &cexec.Options{PermitNonzero: true})
	if err != nil || stdout == "" {
		return task.Info{}
	}
	if strings.Contains(stdout, "Unknown Job Id") {
		return task.Info{}
	}

	lines := strings.Split(stdout, "\n")
	data := task.Info{"job_number": pid, "status": "Running"}
	if kv := pbsHeaderSplit.Split(strings.TrimSpace(lines[0]), 2); len(kv) == 2 {
		data[kv[0]] = kv[1]
	}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if kv := pbsFieldSplit.Split(line, 2); len(kv) == 2 {
			data[kv[0]] = kv[1]
		}
	}
	if state, ok := data["job_state"]; ok {
		data["status"] = state
	}
	return data
}

// Kill terminates the submission with qdel.
func (t *PBSTask) Kill() error {
	return t.killOnce(func() error {
		_, err := runCommand([]string{"qdel", t.Pid()}, nil)
		if errors.Is(err, core.ErrExecutableNotFound) {
			return nil
		}
		return err
	})
}

// createRunscript composes the qsub submission script.
func (t *PBSTask) createRunscript() (*script.Script, error) {
	rs := t.newRunscript(pbsScriptPrefix)
	scripts := t.Scripts()

	rs.Append(directiveLine(pbsDirective, "-V"))
	rs.Append(directiveLine(pbsDirective, "-N "+t.opts.Name))
	rs.Append(directiveLine(pbsDirective, "-w "+t.Directory()))
	if t.opts.Priority != 0 {
		rs.Append(directiveLine(pbsDirective, fmt.Sprintf("-p %d", t.opts.Priority)))
	}
	if t.opts.Queue != "" {
		rs.Append(directiveLine(pbsDirective, "-q "+t.opts.Queue))
	}
	if t.opts.Runtime > 0 {
		walltime, err := GetTime(t.opts.Runtime)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(pbsDirective, "-l walltime="+walltime))
	}
	if t.opts.Shell != "" {
		rs.Append(directiveLine(pbsDirective, "-S "+t.opts.Shell))
	}
	rs.Append(directiveLine(pbsDirective, fmt.Sprintf("-n %d", t.Processes())))
	if len(t.opts.Dependency) > 0 {
		rs.Append(directiveLine(pbsDirective,
			"-W depend=afterok:"+strings.Join(t.opts.Dependency, ":")))
	}
	if len(t.opts.Extra) > 0 {
		rs.Append(directiveLine(pbsDirective, strings.Join(t.opts.Extra, " ")))
	}

	if len(scripts) > 1 {
		jobsFile, err := t.writeJobsFile(rs)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(pbsDirective,
			fmt.Sprintf("-t 1-%d%%%d", len(scripts), t.maxArraySize())))
		rs.Append(directiveLine(pbsDirective, "-o "+rs.Log()))
		rs.Append(directiveLine(pbsDirective, "-e "+rs.Log()))
		ext, err := t.arrayExtension(pbsArrayIndexVar, jobsFile, pbsArrayOffset)
		if err != nil {
			return nil, err
		}
		rs.Append(ext...)
	} else {
		rs.Append(directiveLine(pbsDirective, "-o "+t.Logs()[0]))
		rs.Append(directiveLine(pbsDirective, "-e "+t.Logs()[0]))
		rs.Append(scripts[0])
	}
	return rs, nil
}
