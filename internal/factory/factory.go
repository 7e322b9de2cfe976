// Package factory selects a task backend by platform tag.
package factory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fsimkovic/pyjob/internal/cluster"
	"github.com/fsimkovic/pyjob/internal/config"
	"github.com/fsimkovic/pyjob/internal/core"
	"github.com/fsimkovic/pyjob/internal/local"
	"github.com/fsimkovic/pyjob/internal/task"
)

// Constructor builds a task from scripts and fully-resolved options.
type Constructor func(scripts interface{}, opts *cluster.Options) (task.Task, error)

var platforms = map[string]Constructor{
	"local": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return local.New(scripts, &opts.Options)
	},
	"lsf": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return cluster.NewLSF(scripts, opts)
	},
	"pbs": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return cluster.NewPBS(scripts, opts)
	},
	"slurm": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return cluster.NewSlurm(scripts, opts)
	},
	"sge": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return cluster.NewSGE(scripts, opts)
	},
	"torque": func(scripts interface{}, opts *cluster.Options) (task.Task, error) {
		return cluster.NewTorque(scripts, opts)
	},
}

// New constructs the task registered under the case-insensitive platform tag.
// Unset options fall back to the configuration store, then to defaults.
func New(platform string, scripts interface{}, opts *cluster.Options) (task.Task, error) {
	constructor, ok := platforms[strings.ToLower(platform)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownPlatform, platform)
	}
	if opts == nil {
		opts = &cluster.Options{}
	}
	opts.Resolve(config.Default())
	return constructor(scripts, opts)
}

// Platforms lists the registered platform tags.
func Platforms() []string {
	tags := make([]string, 0, len(platforms))
	for tag := range platforms {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
