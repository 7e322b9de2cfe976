// Package cluster implements tasks submitted to external batch systems. The
// backends share one composition template and differ only in submission
// command, directive prefix, array-index variable and status commands.
package cluster

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/config"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/metrics"
	"github.com/fsimkovic/pyjob/internal/script"
	"github.com/fsimkovic/pyjob/internal/task"
)

// Seams for tests; production code never swaps these.
var (
	runCommand = cexec.Run
	lookPath   = exec.LookPath
	sleep      = time.Sleep
)

// Options extends the common task options with batch-system parameters.
type Options struct {
	task.Options `mapstructure:",squash"`

	// Dependency holds prior task IDs passed verbatim to the backend.
	Dependency []string `mapstructure:"dependency"`

	// MaxArraySize caps concurrent array elements. Defaults to the number of
	// collected scripts.
	MaxArraySize int `mapstructure:"max_array_size"`

	// Priority is the backend scheduling priority. Zero means unset.
	Priority int `mapstructure:"priority"`

	// Queue selects the submission queue. Empty means the backend default.
	Queue string `mapstructure:"queue"`

	// Environment names the SGE parallel environment.
	Environment string `mapstructure:"environment"`

	// Runtime is the wall-clock limit in minutes. Zero means unset.
	Runtime int `mapstructure:"runtime"`

	// Shell is the absolute path of the shell executing the runscript.
	Shell string `mapstructure:"shell"`

	// Name labels the submission.
	Name string `mapstructure:"name"`

	// Extra holds backend-specific directive fragments appended verbatim.
	Extra []string `mapstructure:"extra"`

	// Cleanup removes the generated runscript and jobs file on Close.
	Cleanup bool `mapstructure:"cleanup"`
}

// Resolve fills unset fields from the configuration store.
func (o *Options) Resolve(cfg *config.Config) {
	o.Options.Resolve(cfg)
	if o.MaxArraySize == 0 {
		o.MaxArraySize = cfg.GetInt(config.KeyMaxArraySize)
	}
	if o.Queue == "" {
		o.Queue = cfg.GetString(config.KeyQueue)
	}
	if o.Runtime == 0 {
		o.Runtime = cfg.GetInt(config.KeyRuntime)
	}
	if o.Shell == "" {
		o.Shell = cfg.GetString(config.KeyShell)
	}
	if o.Name == "" {
		o.Name = cfg.GetString(config.KeyName)
	}
	if o.Environment == "" {
		o.Environment = cfg.GetString(config.KeyEnvironment)
	}
	if !o.Cleanup {
		o.Cleanup = cfg.GetBool(config.KeyCleanup)
	}
	o.applyDefaults()
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "pyjob"
	}
	if o.Environment == "" {
		o.Environment = "mpi"
	}
}

// GetTime formats a runtime of M minutes as hh:mm:00 with zero-padded
// two-digit fields.
func GetTime(minutes int) (string, error) {
	if minutes <= 0 {
		return "", fmt.Errorf("%w: %d", core.ErrInvalidRuntime, minutes)
	}
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60), nil
}

// base carries the state shared by every cluster backend.
type base struct {
	*task.Base

	platform  string
	opts      Options
	runscript *script.Script
	jobsFile  string

	killMu sync.Mutex
	killed bool
}

func newBase(platform string, scripts interface{}, opts *Options) (*base, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.applyDefaults()
	if opts.Runtime < 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidRuntime, opts.Runtime)
	}

	taskBase, err := task.NewBase(scripts, &opts.Options)
	if err != nil {
		return nil, err
	}
	return &base{Base: taskBase, platform: platform, opts: *opts}, nil
}

// Platform returns the factory tag.
func (b *base) Platform() string {
	return b.platform
}

// ensureExecAvailable verifies that a backend command is discoverable on PATH.
func ensureExecAvailable(name string) error {
	if _, err := lookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", core.ErrRequirementsNotMet, name)
	}
	return nil
}

// newRunscript allocates the submission script with a fresh unique integer
// stem and the backend's filename prefix.
func (b *base) newRunscript(prefix string) *script.Script {
	rs := script.New()
	rs.SetDirectory(b.Directory())
	rs.Prefix = prefix
	rs.Stem = task.NewUID()
	rs.Suffix = ".script"
	return rs
}

// maxArraySize returns the configured concurrency cap, defaulting to the
// number of collected scripts.
func (b *base) maxArraySize() int {
	if b.opts.MaxArraySize > 0 {
		return b.opts.MaxArraySize
	}
	return b.Collector().Len()
}

// writeJobsFile materializes the sibling .jobs file: one member script path
// per line in collector order, final line newline-terminated.
func (b *base) writeJobsFile(rs *script.Script) (string, error) {
	jobsFile := strings.TrimSuffix(rs.Path(), rs.Suffix) + ".jobs"
	content := strings.Join(b.Scripts(), "\n") + "\n"
	if err := os.WriteFile(jobsFile, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("pyjob: cannot write jobs file %s: %w", jobsFile, err)
	}
	b.jobsFile = jobsFile
	return jobsFile, nil
}

// arrayExtension renders the three-line dispatcher fragment mapping the array
// index to a member script and its log. The jobs file must already exist.
func (b *base) arrayExtension(indexVar, jobsFile string, offset int) ([]string, error) {
	if jobsFile == "" {
		return nil, core.ErrInvalidJobsFile
	}
	if info, err := os.Stat(jobsFile); err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidJobsFile, jobsFile)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidOffset, offset)
	}

	var scriptDef string
	if offset > 0 {
		scriptDef = fmt.Sprintf(`script=$(awk "NR==$((%s + %d))" %s)`, indexVar, offset, jobsFile)
	} else {
		scriptDef = fmt.Sprintf(`script=$(awk "NR==%s" %s)`, indexVar, jobsFile)
	}
	return []string{
		scriptDef,
		`log=$(echo $script | sed "s/\.${script##*.}/\.log/")`,
		`$script > $log 2>&1`,
	}, nil
}

// killOnce runs f at most once for a submitted task; unsubmitted tasks and
// repeat calls are no-ops.
func (b *base) killOnce(f func() error) error {
	b.killMu.Lock()
	defer b.killMu.Unlock()
	if b.killed || b.Pid() == "" {
		return nil
	}
	if err := f(); err != nil {
		return err
	}
	b.killed = true
	metrics.TasksKilledTotal.WithLabelValues(b.platform).Inc()
	log.Debugf("Terminated task: %s", b.Pid())
	return nil
}

// Release counts natural completion and removes generated submission files
// when cleanup is requested. Invoked once, by Close.
func (b *base) Release() error {
	b.killMu.Lock()
	killed := b.killed
	b.killMu.Unlock()
	if !killed && b.Pid() != "" {
		metrics.TasksCompletedTotal.WithLabelValues(b.platform).Inc()
	}

	if !b.opts.Cleanup || b.runscript == nil {
		return nil
	}
	for _, path := range []string{b.runscript.Path(), b.jobsFile, b.runscript.Log()} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Runscript returns the generated submission script, or nil before Run.
func (b *base) Runscript() *script.Script {
	return b.runscript
}

// JobsFile returns the generated jobs file path, or "" for single-script
// submissions.
func (b *base) JobsFile() string {
	return b.jobsFile
}

// directiveLine joins a directive prefix with a command fragment.
func directiveLine(prefix, fragment string) string {
	return prefix + " " + fragment
}
