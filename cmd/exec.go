package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fsimkovic/pyjob/internal/cluster"
	"github.com/fsimkovic/pyjob/internal/config"
	"github.com/fsimkovic/pyjob/internal/factory"
	"github.com/fsimkovic/pyjob/internal/log"
	"github.com/fsimkovic/pyjob/internal/metrics"
	"github.com/fsimkovic/pyjob/internal/stopwatch"
	"github.com/fsimkovic/pyjob/internal/task"
)

var (
	execDirectory     string
	execPlatform      string
	execProcesses     int
	execChdir         bool
	execPermitNonzero bool
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] SCRIPTS...",
	Short: "Execute one or more scripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execDirectory, "directory", "d", "", "the run directory")
	execCmd.Flags().StringVarP(&execPlatform, "platform", "p", "",
		"the execution platform ("+strings.Join(factory.Platforms(), "|")+")")
	execCmd.Flags().IntVarP(&execProcesses, "threads", "t", 0, "number of concurrent processes")
	execCmd.Flags().BoolVar(&execChdir, "chdir", false, "execute jobs in script directory")
	execCmd.Flags().BoolVar(&execPermitNonzero, "permit-nonzero", false,
		"permit non-zero return codes from executables")
}

func runExec(cmd *cobra.Command, args []string) error {
	level := "info"
	if verbosity > 0 {
		level = "debug"
	}
	log.Init(&log.Config{Level: level})
	log.SetLevel(level)

	cfg := config.Default()

	if addr := cfg.GetString(config.KeyMetrics); addr != "" {
		server := metrics.NewServer(addr)
		server.Start()
		defer server.Stop(context.Background())
	}

	scripts := make([]string, len(args))
	for i, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		scripts[i] = abs
	}

	platform := execPlatform
	if platform == "" {
		platform = cfg.GetString(config.KeyPlatform)
	}
	if platform == "" {
		platform = "local"
	}

	opts := &cluster.Options{
		Options: task.Options{
			Directory:     execDirectory,
			Processes:     execProcesses,
			Chdir:         execChdir,
			PermitNonzero: execPermitNonzero,
		},
	}

	t, err := factory.New(platform, scripts, opts)
	if err != nil {
		return err
	}
	defer t.Close()

	sw := stopwatch.New()
	sw.Start()

	if err := t.Run(); err != nil {
		return err
	}
	if err := t.Wait(&task.WaitOptions{Interval: time.Second}); err != nil {
		return err
	}

	days, hours, minutes, seconds := stopwatch.Pretty(sw.Stop())
	log.Infof("Task %s finished in %dd %dh %dm %ds", t.Pid(), days, hours, minutes, seconds)
	return nil
}
