package script

import (
	"fmt"
	"os"

	"github.com/fsimkovic/pyjob/internal/core"
)

// Collector is an ordered, appendable container of Scripts. It accepts a
// *Script, a filesystem path, nil, or a slice of those; paths are parsed into
// Scripts as they are added.
type Collector struct {
	scripts []*Script
	locked  bool
}

// NewCollector constructs a Collector from any accepted input shape.
func NewCollector(input interface{}) (*Collector, error) {
	c := &Collector{}
	if err := c.Add(input); err != nil {
		return nil, err
	}
	return c, nil
}

// Add appends one or more scripts. Inputs of an unsupported shape fail with
// core.ErrUnrecognisedInput.
func (c *Collector) Add(input interface{}) error {
	if c.locked {
		return core.ErrCollectorLocked
	}
	switch v := input.(type) {
	case nil:
		return nil
	case *Script:
		if err := v.Validate(); err != nil {
			return err
		}
		c.scripts = append(c.scripts, v)
	case string:
		s, err := Read(v)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}
		c.scripts = append(c.scripts, s)
	case []*Script:
		for _, s := range v {
			if err := c.Add(s); err != nil {
				return err
			}
		}
	case []string:
		for _, p := range v {
			if err := c.Add(p); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, e := range v {
			if err := c.Add(e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %T", core.ErrUnrecognisedInput, input)
	}
	return nil
}

// Lock prevents further additions.
func (c *Collector) Lock() {
	c.locked = true
}

// Len returns the number of collected scripts.
func (c *Collector) Len() int {
	return len(c.scripts)
}

// Scripts returns the collected scripts in insertion order.
func (c *Collector) Scripts() []*Script {
	return c.scripts
}

// Paths returns the script file paths in insertion order.
func (c *Collector) Paths() []string {
	paths := make([]string, len(c.scripts))
	for i, s := range c.scripts {
		paths[i] = s.Path()
	}
	return paths
}

// Logs returns the log file paths in insertion order.
func (c *Collector) Logs() []string {
	logs := make([]string, len(c.scripts))
	for i, s := range c.scripts {
		logs[i] = s.Log()
	}
	return logs
}

// Dump writes every member that is not yet on disk.
func (c *Collector) Dump() error {
	for _, s := range c.scripts {
		if _, err := os.Stat(s.Path()); err == nil {
			continue
		}
		if err := s.Write(); err != nil {
			return err
		}
	}
	return nil
}
