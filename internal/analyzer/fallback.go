package analyzer

import (
	"context"
	"log/slog"
)

// FallbackChecker tries a primary checker and falls back to a secondary
// one when the primary cannot run (for example, Docker is unavailable).
type FallbackChecker struct {
	primary   SyntaxChecker
	secondary SyntaxChecker
	logger    *slog.Logger
}

// NewFallbackChecker chains two checkers. A nil primary returns the
// secondary unchanged.
func NewFallbackChecker(primary, secondary SyntaxChecker, logger *slog.Logger) SyntaxChecker {
	if primary == nil {
		return secondary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChecker{primary: primary, secondary: secondary, logger: logger}
}

// CheckSyntax implements SyntaxChecker.
func (c *FallbackChecker) CheckSyntax(ctx context.Context, code string) (*SyntaxError, error) {
	synErr, err := c.primary.CheckSyntax(ctx, code)
	if err == nil {
		return synErr, nil
	}
	c.logger.Warn("primary syntax checker failed, falling back", "error", err)
	return c.secondary.CheckSyntax(ctx, code)
}
