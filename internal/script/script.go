// Package script models executable script files and ordered collections of
// them.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsimkovic/pyjob/internal/core"
)

// Platform-dependent script conventions.
var (
	ExeExt       = ""
	ScriptHeader = "#!/bin/bash"
	ScriptExt    = ".sh"
)

func init() {
	if runtime.GOOS == "windows" {
		ExeExt, ScriptHeader, ScriptExt = ".exe", "", ".bat"
	}
}

// Script holds the contents and filesystem identity of an executable script.
// The filename is prefix+stem+suffix inside Directory().
type Script struct {
	Shebang string
	Prefix  string
	Stem    string
	Suffix  string
	Content []string

	directory string
}

// New returns a Script with the default shebang, prefix "tmp", stem "pyjob"
// and the platform script extension, stored in the current directory.
func New() *Script {
	s := &Script{
		Shebang: ScriptHeader,
		Prefix:  "tmp",
		Stem:    "pyjob",
		Suffix:  ScriptExt,
	}
	s.SetDirectory(".")
	return s
}

// SetDirectory stores the absolutized directory.
func (s *Script) SetDirectory(directory string) {
	abs, err := filepath.Abs(directory)
	if err != nil {
		abs = directory
	}
	s.directory = abs
}

// Directory returns the storage directory.
func (s *Script) Directory() string {
	return s.directory
}

// Path returns the script file path.
func (s *Script) Path() string {
	return filepath.Join(s.directory, s.Prefix+s.Stem+s.Suffix)
}

// Log returns the path of the sibling log file, the script path with its
// final extension replaced by ".log".
func (s *Script) Log() string {
	p := s.Path()
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".log"
}

// Validate checks the filename invariants.
func (s *Script) Validate() error {
	if s.Suffix == "" || !strings.Contains(s.Suffix, ".") {
		return fmt.Errorf("%w: %q", core.ErrInvalidSuffix, s.Suffix)
	}
	return nil
}

// String renders the script contents: the shebang line (when set) followed by
// the content lines joined with line feeds.
func (s *Script) String() string {
	lines := s.Content
	if s.Shebang != "" {
		lines = append([]string{s.Shebang}, s.Content...)
	}
	return strings.Join(lines, "\n")
}

// Append adds lines to the script body.
func (s *Script) Append(lines ...string) {
	s.Content = append(s.Content, lines...)
}

// AppendScript concatenates another script's body onto this one. The two
// scripts must agree on shebang and suffix.
func (s *Script) AppendScript(other *Script) error {
	if other.Shebang != s.Shebang || other.Suffix != s.Suffix {
		return core.ErrScriptMismatch
	}
	s.Content = append(s.Content, other.Content...)
	return nil
}

// Write materializes the script to Path() with owner-executable permissions.
func (s *Script) Write() error {
	if err := s.Validate(); err != nil {
		return err
	}
	path := s.Path()
	if err := os.WriteFile(path, []byte(s.String()), 0o644); err != nil {
		return fmt.Errorf("pyjob: cannot write script %s: %w", path, err)
	}
	return os.Chmod(path, 0o777)
}

// Read parses an on-disk script file. A first line beginning with "#!" becomes
// the shebang; prefix is empty, stem and suffix derive from the filename.
func Read(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pyjob: cannot read script %s: %w", path, err)
	}

	directory, fname := filepath.Split(path)
	ext := filepath.Ext(fname)
	s := &Script{
		Prefix: "",
		Stem:   strings.TrimSuffix(fname, ext),
		Suffix: ext,
	}
	s.SetDirectory(directory)

	var lines []string
	if len(raw) > 0 {
		for _, line := range strings.Split(string(raw), "\n") {
			lines = append(lines, strings.TrimRight(line, " \t\r"))
		}
		// A trailing newline is not an empty final line.
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
	}
	if len(lines) > 0 && strings.HasPrefix(lines[0], "#!") {
		s.Shebang = lines[0]
		lines = lines[1:]
	}
	s.Content = lines
	return s, nil
}

// IsValidPath reports whether path names an existing executable file.
func IsValidPath(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o100 != 0
}
