package cluster

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/script"
	"github.com/fsimkovic/pyjob/internal/task"
)

const (
	sgePlatform      = "sge"
	sgeDirective     = "#$"
	sgeArrayIndexVar = "$SGE_TASK_ID"
	sgeArrayOffset   = 0
	sgeScriptPrefix  = "sge_"
	sgeStatusExec    = "qstat"
)

var (
	sgeLineSplit = regexp.MustCompile(`:\s+`)
	sgePidMatch  = regexp.MustCompile(`Your job.*has been submitted`)
)

// sgeConfigParam selects a qconf probe.
type sgeConfigParam string

const (
	sgeEnvironments sgeConfigParam = "environments"
	sgeQueues       sgeConfigParam = "queues"
)

// sgeConfigCache holds qconf probe results for the lifetime of the process.
var sgeConfigCache = gocache.New(gocache.NoExpiration, 0)

// SGETask submits through Sun Grid Engine via qsub.
type SGETask struct {
	*base
}

// NewSGE constructs an SGE task. Construction verifies that qstat is on PATH
// and that the requested parallel environment and queue exist.
func NewSGE(scripts interface{}, opts *Options) (*SGETask, error) {
	b, err := newBase(sgePlatform, scripts, opts)
	if err != nil {
		return nil, err
	}
	t := &SGETask{base: b}
	t.Bind(t)
	if err := t.checkRequirements(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SGETask) checkRequirements() error {
	if err := ensureExecAvailable(sgeStatusExec); err != nil {
		return err
	}
	environments, err := sgeAvailConfigs(sgeEnvironments)
	if err != nil {
		return err
	}
	if t.opts.Environment != "" {
		if _, ok := environments[t.opts.Environment]; !ok {
			return fmt.Errorf("%w: requested environment %s cannot be found",
				core.ErrRequirementsNotMet, t.opts.Environment)
		}
	}
	if t.opts.Queue != "" {
		queues, err := sgeAvailConfigs(sgeQueues)
		if err != nil {
			return err
		}
		if _, ok := queues[t.opts.Queue]; !ok {
			return fmt.Errorf("%w: requested queue %s cannot be found",
				core.ErrRequirementsNotMet, t.opts.Queue)
		}
	}
	return nil
}

// sgeAvailConfigs probes qconf for the named parameter set. Probes run once
// per process; results are cached.
func sgeAvailConfigs(param sgeConfigParam) (map[string]struct{}, error) {
	if cached, ok := sgeConfigCache.Get(string(param)); ok {
		return cached.(map[string]struct{}), nil
	}

	var cmd []string
	switch param {
	case sgeEnvironments:
		cmd = []string{"qconf", "-spl"}
	case sgeQueues:
		cmd = []string{"qconf", "-sql"}
	default:
		return nil, fmt.Errorf("%w: unsupported SGE parameter %q", core.ErrRequirementsNotMet, param)
	}

	stdout, err := runCommand(cmd, &cexec.Options{PermitNonzero: true})
	if err != nil {
		return nil, err
	}
	configs := make(map[string]struct{})
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 {
			break
		}
		if len(fields) == 1 {
			configs[fields[0]] = struct{}{}
		}
	}
	sgeConfigCache.Set(string(param), configs, gocache.NoExpiration)
	return configs, nil
}

// Submit writes the runscript and hands its path to qsub. The pid is the
// third token of the confirmation line; array submissions report "N.1-M:1"
// and only the leading integer is taken.
func (t *SGETask) Submit() error {
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
	var pid string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !sgePidMatch.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid = strings.SplitN(fields[2], ".", 2)[0]
	}
	if pid == "" {
		return fmt.Errorf("pyjob: cannot parse qsub response: %q", stdout)
	}
	t.SetPid(pid)
	log.Debugf("SGE task [%s] submission script is %s", pid, rs.Path())
	return nil
}

// Info parses the qstat -j key: value block. An unknown job yields an empty
// Info.
func (t *SGETask) Info() task.Info {
	pid := t.Pid()
	if pid == "" {
		return task.Info{}
	}
	stdout, err := runCommand([]string{sgeStatusExec, "-j", pid}, &cexec.Options{PermitNonzero: true})
	if err != nil || stdout == "" {
		return task.Info{}
	}

	data := task.Info{}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "jobs do not exist") {
			return task.Info{}
		}
		if line == "" || strings.Contains(line, strings.Repeat("=", 30)) {
			continue
		}
		if kv := sgeLineSplit.Split(line, 2); len(kv) == 2 {
			data[kv[0]] = kv[1]
		}
	}
	if len(data) == 0 {
		return data
	}
	data["job_number"] = pid
	if _, ok := data["status"]; !ok {
		data["status"] = "Running"
	}
	return data
}

// Kill terminates the submission with qdel.
func (t *SGETask) Kill() error {
	return t.killOnce(func() error {
		_, err := runCommand([]string{"qdel", t.Pid()}, nil)
		if errors.Is(err, core.ErrExecutableNotFound) {
			return nil
		}
		return err
	})
}

// createRunscript composes the qsub submission script.
func (t *SGETask) createRunscript() (*script.Script, error) {
	rs := t.newRunscript(sgeScriptPrefix)
	scripts := t.Scripts()

	rs.Append(directiveLine(sgeDirective, "-V"))
	rs.Append(directiveLine(sgeDirective, "-w e"))
	rs.Append(directiveLine(sgeDirective, "-j yes"))
	rs.Append(directiveLine(sgeDirective, "-N "+t.opts.Name))
	if len(t.opts.Dependency) > 0 {
		rs.Append(directiveLine(sgeDirective, "-hold_jid "+strings.Join(t.opts.Dependency, ",")))
	}
	if t.opts.Priority != 0 {
		rs.Append(directiveLine(sgeDirective, fmt.Sprintf("-p %d", t.opts.Priority)))
	}
	if t.opts.Queue != "" {
		rs.Append(directiveLine(sgeDirective, "-q "+t.opts.Queue))
	}
	if t.opts.Runtime > 0 {
		hrt, err := GetTime(t.opts.Runtime)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(sgeDirective, "-l h_rt="+hrt))
	}
	if t.opts.Shell != "" {
		rs.Append(directiveLine(sgeDirective, "-S "+t.opts.Shell))
	}
	if t.opts.Environment != "" {
		rs.Append(directiveLine(sgeDirective,
			fmt.Sprintf("-pe %s %d", t.opts.Environment, t.Processes())))
	}
	rs.Append(directiveLine(sgeDirective, "-wd "+t.Directory()))
	if len(t.opts.Extra) > 0 {
		rs.Append(directiveLine(sgeDirective, strings.Join(t.opts.Extra, " ")))
	}

	if len(scripts) > 1 {
		jobsFile, err := t.writeJobsFile(rs)
		if err != nil {
			return nil, err
		}
		rs.Append(directiveLine(sgeDirective,
			fmt.Sprintf("-t 1-%d -tc %d", len(scripts), t.maxArraySize())))
		rs.Append(directiveLine(sgeDirective, "-o "+rs.Log()))
		ext, err := t.arrayExtension(sgeArrayIndexVar, jobsFile, sgeArrayOffset)
		if err != nil {
			return nil, err
		}
		rs.Append(ext...)
	} else {
		rs.Append(directiveLine(sgeDirective, "-o "+t.Logs()[0]))
		rs.Append(scripts[0])
	}
	return rs, nil
}
