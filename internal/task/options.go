package task

import (
	"path/filepath"

	"github.com/fsimkovic/pyjob/internal/config"
)

// Options are the construction parameters common to every backend.
type Options struct {
	// Directory is where generated files live and scripts execute. Defaults
	// to the process working directory.
	Directory string `mapstructure:"directory"`

	// Processes bounds the task's parallelism. Defaults to 1.
	Processes int `mapstructure:"processes"`

	// Chdir executes each script from its own directory instead of
	// Directory. Local backend only.
	Chdir bool `mapstructure:"chdir"`

	// PermitNonzero tolerates scripts exiting non-zero. Local backend only.
	PermitNonzero bool `mapstructure:"permit_nonzero"`
}

// Resolve fills unset fields from the configuration store. The precedence is
// argument, then store, then default.
func (o *Options) Resolve(cfg *config.Config) {
	if o.Directory == "" {
		o.Directory = cfg.GetString(config.KeyDirectory)
	}
	if o.Processes == 0 {
		o.Processes = cfg.GetInt(config.KeyProcesses)
	}
	o.applyDefaults()
}

func (o *Options) applyDefaults() {
	if o.Directory == "" {
		o.Directory = "."
	}
	if abs, err := filepath.Abs(o.Directory); err == nil {
		o.Directory = abs
	}
	if o.Processes < 1 {
		o.Processes = 1
	}
}
