package script

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsimkovic/pyjob/internal/core"
)

func newTestScript(t *testing.T, dir, stem string) *Script {
	t.Helper()
	s := New()
	s.SetDirectory(dir)
	s.Prefix = ""
	s.Stem = stem
	s.Append("echo " + stem)
	return s
}

func TestCollectorAcceptsScript(t *testing.T) {
	c, err := NewCollector(newTestScript(t, t.TempDir(), "a"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestCollectorAcceptsPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.sh", "#!/bin/bash\necho a\n")
	c, err := NewCollector(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, path, c.Paths()[0])
}

func TestCollectorAcceptsNil(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCollectorAcceptsSlices(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.sh", "echo a\n")
	c, err := NewCollector([]interface{}{newTestScript(t, dir, "b"), path, nil})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	c, err = NewCollector([]*Script{newTestScript(t, dir, "c"), newTestScript(t, dir, "d")})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestCollectorRejectsUnknownShape(t *testing.T) {
	_, err := NewCollector(42)
	assert.ErrorIs(t, err, core.ErrUnrecognisedInput)
}

func TestCollectorOrderPreserved(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector([]*Script{
		newTestScript(t, dir, "first"),
		newTestScript(t, dir, "second"),
		newTestScript(t, dir, "third"),
	})
	require.NoError(t, err)
	paths := c.Paths()
	require.Len(t, paths, 3)
	assert.Contains(t, paths[0], "first")
	assert.Contains(t, paths[1], "second")
	assert.Contains(t, paths[2], "third")
}

func TestCollectorDump(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector([]*Script{newTestScript(t, dir, "a"), newTestScript(t, dir, "b")})
	require.NoError(t, err)
	require.NoError(t, c.Dump())
	for _, path := range c.Paths() {
		_, err := os.Stat(path)
		assert.NoError(t, err)
	}
}

func TestCollectorLocked(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.Lock()
	assert.ErrorIs(t, c.Add(newTestScript(t, t.TempDir(), "a")), core.ErrCollectorLocked)
}

func TestCollectorLogs(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCollector(newTestScript(t, dir, "a"))
	require.NoError(t, err)
	require.Len(t, c.Logs(), 1)
	assert.Contains(t, c.Logs()[0], "a.log")
}
