package main

import (
	"fmt"

	mcpserver "github.com/felixgeelhaar/socratic/internal/mcp"
)

// cmdMCP serves the tutor tools over stdio
func cmdMCP() error {
	ctx, cancel := signalContext()
	defer cancel()

	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.EnsureIndexed(ctx); err != nil {
		return fmt.Errorf("index corpus: %w", err)
	}

	srv := mcpserver.NewServer(mcpserver.Config{App: a, Version: Version})
	return srv.ServeStdio(ctx)
}
