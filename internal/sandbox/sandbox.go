// Package sandbox checks Python syntax with CPython inside a Docker
// container, for exact error messages and line numbers.
package sandbox

import (
	"errors"
	"time"
)

// ExecResult holds the output from a command run in the container.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Config holds container parameters.
type Config struct {
	Image      string        `json:"image"`
	MemoryMB   int           `json:"memory_mb"`
	CPULimit   float64       `json:"cpu_limit"`
	NetworkOff bool          `json:"network_off"`
	Timeout    time.Duration `json:"timeout"` // per check
}

// DefaultConfig returns the defaults for a Python syntax sandbox.
func DefaultConfig() Config {
	return Config{
		Image:      "python:3.12-alpine",
		MemoryMB:   128,
		CPULimit:   0.5,
		NetworkOff: true,
		Timeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Image == "" {
		c.Image = d.Image
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = d.MemoryMB
	}
	if c.CPULimit <= 0 {
		c.CPULimit = d.CPULimit
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

var (
	ErrCheckFailed = errors.New("syntax check produced no diagnosis")
	ErrClosed      = errors.New("sandbox closed")
)
