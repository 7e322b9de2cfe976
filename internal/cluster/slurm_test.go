package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsimkovic/pyjob/internal/cexec"
)

func TestSlurmArrayRunscript(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()

	slurm, err := NewSlurm(memberScripts(t, dir, 4), taskOptions(dir))
	require.NoError(t, err)
	rs, err := slurm.createRunscript()
	require.NoError(t, err)

	jobsFile := slurm.JobsFile()
	expected := []string{
		"#SBATCH --export=ALL",
		"#SBATCH --job-name=pyjob",
		"#SBATCH -n 1",
		"#SBATCH --workdir=" + dir,
		"#SBATCH --array=1-4%4",
		"#SBATCH -o " + rs.Log(),
		`script=$(awk "NR==$SLURM_ARRAY_TASK_ID" ` + jobsFile + `)`,
		`log=$(echo $script | sed "s/\.${script##*.}/\.log/")`,
		`$script > $log 2>&1`,
	}
	assert.Equal(t, expected, rs.Content)
}

func TestSlurmSingleRunscript(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	scripts := memberScripts(t, dir, 1)
	opts := taskOptions(dir)
	opts.Dependency = []string{"5", "6"}
	opts.Queue = "batch"
	opts.Runtime = 45

	slurm, err := NewSlurm(scripts, opts)
	require.NoError(t, err)
	rs, err := slurm.createRunscript()
	require.NoError(t, err)

	expected := []string{
		"#SBATCH --export=ALL",
		"#SBATCH --job-name=pyjob",
		"#SBATCH --depend=afterok:5:6",
		"#SBATCH -p batch",
		"#SBATCH -n 1",
		"#SBATCH --workdir=" + dir,
		"#SBATCH -t 45",
		"#SBATCH -o " + scripts[0].Log(),
		scripts[0].Path(),
	}
	assert.Equal(t, expected, rs.Content)
}

func TestSlurmSubmit(t *testing.T) {
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		if cmd[0] == "sbatch" {
			return "Submitted batch job 881212", nil
		}
		return "", fmt.Errorf("unexpected command %v", cmd)
	})

	dir := t.TempDir()
	slurm, err := NewSlurm(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, slurm.Run())
	assert.Equal(t, "881212", slurm.Pid())
}

func TestSlurmInfo(t *testing.T) {
	var squeueErr error
	response := "JOBID PARTITION  NAME  USER ST\n881213     batch pyjob  x  R\n"
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "sbatch":
			return "Submitted batch job 881213", nil
		case "squeue":
			return response, squeueErr
		}
		return "", nil
	})

	dir := t.TempDir()
	slurm, err := NewSlurm(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, slurm.Run())

	info := slurm.Info()
	assert.Equal(t, "881213", info["job_number"])
	assert.Equal(t, "Running", info["status"])

	// The job left the queue: squeue reports only the header.
	response = "JOBID PARTITION NAME USER ST\n"
	assert.Empty(t, slurm.Info())

	// An unknown job makes squeue fail outright.
	squeueErr = fmt.Errorf("squeue: error: Invalid job id specified")
	assert.Empty(t, slurm.Info())
	assert.True(t, slurm.Completed())
}

func TestSlurmKill(t *testing.T) {
	var cancelled []string
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "sbatch":
			return "Submitted batch job 3", nil
		case "scancel":
			cancelled = append(cancelled, cmd[1])
		}
		return "", nil
	})

	dir := t.TempDir()
	slurm, err := NewSlurm(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, slurm.Run())
	require.NoError(t, slurm.Kill())
	require.NoError(t, slurm.Kill())
	assert.Equal(t, []string{"3"}, cancelled)
}
