package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/socratic/internal/analyzer"
)

// Backend is the container surface the Checker needs.
type Backend interface {
	Start(ctx context.Context, cfg Config) (string, error)
	Running(ctx context.Context, id string) (bool, error)
	Run(ctx context.Context, id string, cmd []string, stdin string, timeout time.Duration) (*ExecResult, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// compileScript compiles stdin and reports a failure in traceback form,
// so the line always refers to the learner's source.
const compileScript = `import sys
try:
    compile(sys.stdin.read(), "snippet.py", "exec")
except (SyntaxError, ValueError) as e:
    print(f'  File "snippet.py", line {getattr(e, "lineno", None) or 0}', file=sys.stderr)
    print(f"{type(e).__name__}: {getattr(e, 'msg', None) or e}", file=sys.stderr)
    sys.exit(1)
`

var (
	fileLineRe = regexp.MustCompile(`File "[^"]*", line (\d+)`)
	errLineRe  = regexp.MustCompile(`^(\w*Error): (.+)$`)
)

// Checker compiles code with CPython inside a warm container. The
// container is created on first use and replaced if it stops.
type Checker struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu          sync.Mutex
	containerID string
	closed      bool
}

// NewChecker creates a Checker on top of a backend.
func NewChecker(backend Backend, cfg Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.NetworkOff = true
	return &Checker{backend: backend, cfg: cfg, logger: logger}
}

// NewDockerChecker connects to the local Docker daemon.
func NewDockerChecker(cfg Config, logger *slog.Logger) (*Checker, error) {
	backend, err := NewDockerBackend()
	if err != nil {
		return nil, err
	}
	return NewChecker(backend, cfg, logger), nil
}

// container returns a running container id, starting one if needed.
func (c *Checker) container(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.containerID != "" {
		running, err := c.backend.Running(ctx, c.containerID)
		if err == nil && running {
			return c.containerID, nil
		}
		c.logger.Warn("sandbox container gone, recreating", "container", shortID(c.containerID), "error", err)
		_ = c.backend.Remove(ctx, c.containerID)
		c.containerID = ""
	}

	id, err := c.backend.Start(ctx, c.cfg)
	if err != nil {
		return "", err
	}
	c.logger.Info("sandbox container started", "container", shortID(id), "image", c.cfg.Image)
	c.containerID = id
	return id, nil
}

// CheckSyntax implements analyzer.SyntaxChecker.
func (c *Checker) CheckSyntax(ctx context.Context, code string) (*analyzer.SyntaxError, error) {
	id, err := c.container(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox container: %w", err)
	}

	res, err := c.backend.Run(ctx, id, []string{"python3", "-c", compileScript}, code, c.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("compile in sandbox: %w", err)
	}
	if res.ExitCode == 0 {
		return nil, nil
	}

	synErr := ParseCompileError(res.Stderr + res.Stdout)
	if synErr == nil {
		return nil, fmt.Errorf("%w: exit %d", ErrCheckFailed, res.ExitCode)
	}
	return synErr, nil
}

// ParseCompileError extracts the line and message from CPython's
// compile output.
// It returns nil when the output holds no SyntaxError-family line.
func ParseCompileError(output string) *analyzer.SyntaxError {
	var msg string
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if m := errLineRe.FindStringSubmatch(line); m != nil {
			msg = m[2]
			break
		}
	}
	if msg == "" {
		return nil
	}

	line := 0
	if m := fileLineRe.FindStringSubmatch(output); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return &analyzer.SyntaxError{Msg: msg, Line: line}
}

// Close removes the container and releases the Docker client.
func (c *Checker) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if c.containerID != "" {
		if err := c.backend.Remove(ctx, c.containerID); err != nil {
			c.logger.Warn("destroy sandbox container", "error", err)
		}
		c.containerID = ""
	}
	return c.backend.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Ensure Checker implements SyntaxChecker
var _ analyzer.SyntaxChecker = (*Checker)(nil)

// Ensure DockerBackend implements Backend
var _ Backend = (*DockerBackend)(nil)
