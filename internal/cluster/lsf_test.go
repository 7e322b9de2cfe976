package cluster

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsimkovic/pyjob/internal/cexec"
	"github.com/fsimkovic/pyjob/internal/core"
)

func TestLSFArrayRunscript(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	scripts := memberScripts(t, dir, 3)

	lsf, err := NewLSF(scripts, taskOptions(dir))
	require.NoError(t, err)
	rs, err := lsf.createRunscript()
	require.NoError(t, err)

	jobsFile := lsf.JobsFile()
	expected := []string{
		"#BSUB -cwd " + dir,
		`#BSUB -R "span[ptile=1]"`,
		"#BSUB -J pyjob[1-3]%3",
		"#BSUB -o " + rs.Log(),
		`script=$(awk "NR==$(($LSB_JOBINDEX + 1))" ` + jobsFile + `)`,
		`log=$(echo $script | sed "s/\.${script##*.}/\.log/")`,
		`$script > $log 2>&1`,
	}
	assert.Equal(t, "#!/bin/bash", rs.Shebang)
	assert.Equal(t, expected, rs.Content)
}

func TestLSFArrayJobsFile(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	scripts := memberScripts(t, dir, 3)

	lsf, err := NewLSF(scripts, taskOptions(dir))
	require.NoError(t, err)
	_, err = lsf.createRunscript()
	require.NoError(t, err)

	raw, err := os.ReadFile(lsf.JobsFile())
	require.NoError(t, err)
	content := string(raw)
	require.True(t, strings.HasSuffix(content, "\n"), "final line newline-terminated")

	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	require.Len(t, lines, 3)
	for i, s := range scripts {
		assert.Equal(t, s.Path(), lines[i])
	}
}

func TestLSFSingleRunscript(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	scripts := memberScripts(t, dir, 1)

	lsf, err := NewLSF(scripts, taskOptions(dir))
	require.NoError(t, err)
	rs, err := lsf.createRunscript()
	require.NoError(t, err)

	expected := []string{
		"#BSUB -cwd " + dir,
		`#BSUB -R "span[ptile=1]"`,
		"#BSUB -J pyjob",
		"#BSUB -o " + scripts[0].Log(),
		scripts[0].Path(),
	}
	assert.Equal(t, expected, rs.Content)
	assert.Equal(t, "", lsf.JobsFile())
}

func TestLSFRunscriptAllOptions(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	opts := taskOptions(dir)
	opts.Dependency = []string{"11", "22"}
	opts.Priority = 5
	opts.Queue = "normal"
	opts.Runtime = 90
	opts.Shell = "/bin/bash"
	opts.Extra = []string{"-m", "hostA"}
	opts.Name = "analysis"

	lsf, err := NewLSF(memberScripts(t, dir, 1), opts)
	require.NoError(t, err)
	rs, err := lsf.createRunscript()
	require.NoError(t, err)

	assert.Contains(t, rs.Content, "#BSUB -w deps(11) && deps(22)")
	assert.Contains(t, rs.Content, "#BSUB -sp 5")
	assert.Contains(t, rs.Content, "#BSUB -q normal")
	assert.Contains(t, rs.Content, "#BSUB -W 90")
	assert.Contains(t, rs.Content, "#BSUB -L /bin/bash")
	assert.Contains(t, rs.Content, "#BSUB -m hostA")
	assert.Contains(t, rs.Content, "#BSUB -J analysis")
}

func TestLSFMaxArraySizeCapsConcurrency(t *testing.T) {
	stubCommands(t, nil)
	dir := t.TempDir()
	opts := taskOptions(dir)
	opts.MaxArraySize = 2

	lsf, err := NewLSF(memberScripts(t, dir, 5), opts)
	require.NoError(t, err)
	rs, err := lsf.createRunscript()
	require.NoError(t, err)
	assert.Contains(t, rs.Content, "#BSUB -J pyjob[1-5]%2")
}

func TestLSFSubmit(t *testing.T) {
	var submitted struct {
		stdin string
		dir   string
	}
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		require.Equal(t, []string{"bsub"}, cmd)
		submitted.stdin = opts.Stdin
		submitted.dir = opts.Directory
		return "Job <103742> is submitted to default queue <normal>.", nil
	})

	dir := t.TempDir()
	lsf, err := NewLSF(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, lsf.Run())

	assert.Equal(t, "103742", lsf.Pid())
	assert.Equal(t, dir, submitted.dir)
	assert.Contains(t, submitted.stdin, "#BSUB -cwd "+dir)
	assert.FileExists(t, lsf.Runscript().Path())
}

func TestParseLSFSubmission(t *testing.T) {
	pid, err := parseLSFSubmission("Job <42> is submitted to queue <idle>.")
	require.NoError(t, err)
	assert.Equal(t, "42", pid)

	_, err = parseLSFSubmission("request aborted")
	assert.Error(t, err)
}

func TestLSFInfo(t *testing.T) {
	response := "Job <55>, Job Name <pyjob>, User <x>: Running"
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "bsub":
			return "Job <55> is submitted to default queue <normal>.", nil
		case "bjobs":
			return response, nil
		}
		return "", fmt.Errorf("unexpected command %v", cmd)
	})

	dir := t.TempDir()
	lsf, err := NewLSF(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, lsf.Run())

	info := lsf.Info()
	assert.Equal(t, "55", info["job_number"])
	assert.Equal(t, "Running", info["status"])
	assert.False(t, lsf.Completed())

	response = "Job <55>: Done successfully. The CPU time used is 1.1 seconds."
	assert.Empty(t, lsf.Info())
	assert.True(t, lsf.Completed())
}

func TestLSFKillResponses(t *testing.T) {
	kill := "Job <7> is being terminated"
	var bkillCalls int
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "bsub":
			return "Job <7> is submitted to default queue <normal>.", nil
		case "bkill":
			bkillCalls++
			return kill, nil
		}
		return "", nil
	})

	dir := t.TempDir()
	lsf, err := NewLSF(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, lsf.Run())

	require.NoError(t, lsf.Kill())
	assert.Equal(t, 1, bkillCalls)

	// Idempotent: the backend is not contacted again.
	require.NoError(t, lsf.Kill())
	assert.Equal(t, 1, bkillCalls)
}

func TestLSFKillRetriesInProgress(t *testing.T) {
	var bkillArgs [][]string
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "bsub":
			return "Job <7> is submitted to default queue <normal>.", nil
		case "bkill":
			bkillArgs = append(bkillArgs, cmd)
			return "Job <7>: Operation is in progress", nil
		}
		return "", nil
	})

	dir := t.TempDir()
	lsf, err := NewLSF(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, lsf.Run())

	require.NoError(t, lsf.Kill())
	require.Len(t, bkillArgs, 2)
	assert.Equal(t, []string{"bkill", "-b", "7"}, bkillArgs[1])
}

func TestLSFKillUnknownResponse(t *testing.T) {
	stubCommands(t, func(cmd []string, opts *cexec.Options) (string, error) {
		switch cmd[0] {
		case "bsub":
			return "Job <7> is submitted to default queue <normal>.", nil
		case "bkill":
			return "bkill: permission denied", nil
		}
		return "", nil
	})

	dir := t.TempDir()
	lsf, err := NewLSF(memberScripts(t, dir, 1), taskOptions(dir))
	require.NoError(t, err)
	require.NoError(t, lsf.Run())
	assert.ErrorIs(t, lsf.Kill(), core.ErrCannotDelete)
}
