package cexec

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsimkovic/pyjob/internal/core"
)

func TestRunCapturesOutput(t *testing.T) {
	stdout, err := Run([]string{"echo", "hello world"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", stdout)
}

func TestRunExecutableNotFound(t *testing.T) {
	_, err := Run([]string{"fjezfsdkj"}, nil)
	assert.ErrorIs(t, err, core.ErrExecutableNotFound)
}

func TestRunNonzeroExit(t *testing.T) {
	_, err := Run([]string{"sh", "-c", "exit 3"}, nil)
	var execErr *core.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
}

func TestRunPermitNonzero(t *testing.T) {
	stdout, err := Run([]string{"sh", "-c", "echo partial; exit 1"}, &Options{PermitNonzero: true})
	require.NoError(t, err)
	assert.Equal(t, "partial", stdout)
}

func TestRunStdin(t *testing.T) {
	stdout, err := Run([]string{"cat"}, &Options{Stdin: "pyjob"})
	require.NoError(t, err)
	assert.Equal(t, "pyjob", stdout)
}

func TestRunMergesStderr(t *testing.T) {
	stdout, err := Run([]string{"sh", "-c", "echo out; echo err 1>&2"}, nil)
	require.NoError(t, err)
	assert.Contains(t, stdout, "out")
	assert.Contains(t, stdout, "err")
}

func TestRunStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	stdout, err := Run([]string{"echo", "sink"}, &Options{Stdout: &buf})
	require.NoError(t, err)
	assert.Equal(t, "", stdout)
	assert.Equal(t, "sink\n", buf.String())
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	stdout, err := Run([]string{"pwd"}, &Options{Directory: dir})
	require.NoError(t, err)
	assert.Contains(t, stdout, dir)
}

func TestRunForwardsSignalAndExits(t *testing.T) {
	exitCode := 0
	orig := exit
	exit = func(code int) { exitCode = code }
	t.Cleanup(func() { exit = orig })

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
	}()

	// The child dies from the forwarded signal; Run then re-raises by
	// terminating the process with the signal's code.
	_, err := Run([]string{"sh", "-c", "sleep 5"}, &Options{ForwardSignals: true})
	assert.Error(t, err)
	assert.Equal(t, int(syscall.SIGTERM), exitCode)
}

func TestIsExe(t *testing.T) {
	assert.False(t, IsExe(t.TempDir()))
	assert.False(t, IsExe("/no/such/file"))
	assert.True(t, IsExe("/bin/sh"))
}
