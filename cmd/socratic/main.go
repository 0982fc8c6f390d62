package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7432"
	pidFile    = "socraticd.pid"
)

// command is one `socratic` subcommand.
type command struct {
	name    string
	args    string
	summary string
	run     func(args []string) error
}

func noArgs(fn func() error) func([]string) error {
	return func([]string) error { return fn() }
}

// groups lists the subcommands in the order the help text shows them.
var groups = []struct {
	title    string
	commands []command
}{
	{"Setup", []command{
		{"setup", "", "First-time setup (config, API keys)", noArgs(cmdSetup)},
		{"doctor", "", "Check Docker, LLM providers and the corpus", noArgs(cmdDoctor)},
		{"config", "", "Show current configuration", noArgs(cmdConfig)},
	}},
	{"Daemon", []command{
		{"start", "", "Start the Socratic daemon", noArgs(cmdStart)},
		{"stop", "", "Stop the Socratic daemon", noArgs(cmdStop)},
		{"status", "", "Show daemon status", noArgs(cmdStatus)},
		{"logs", "", "Show the end of the daemon log", noArgs(cmdLogs)},
	}},
	{"Corpus", []command{
		{"index", "", "Rebuild the embedding matrix for the active embedder", noArgs(cmdIndex)},
		{"analyze", "FILE", `Find known bugs similar to a Python file ("-" reads stdin)`, cmdAnalyze},
		{"worker", "", "Consume reindex jobs from RabbitMQ", noArgs(cmdWorker)},
	}},
	{"Analytics", []command{
		{"stats", "USER", "Show a learner's level, skills and sessions", cmdStats},
	}},
	{"Integration", []command{
		{"mcp", "", "Start MCP server on stdio", noArgs(cmdMCP)},
	}},
}

// aliases maps alternative spellings onto command names.
var aliases = map[string]string{
	"init":      "setup",
	"-h":        "help",
	"--help":    "help",
	"-v":        "version",
	"--version": "version",
}

func lookup(name string) (command, bool) {
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	for _, g := range groups {
		for _, c := range g.commands {
			if c.name == name {
				return c, true
			}
		}
	}
	return command{}, false
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	switch name {
	case "help":
		printUsage()
		return
	case "version":
		fmt.Printf("socratic %s\n", Version)
		return
	}

	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	var b strings.Builder
	b.WriteString("Socratic - A debugging tutor that asks instead of tells\n\n")
	b.WriteString("Usage:\n  socratic <command> [arguments]\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s Commands:\n", g.title)
		for _, c := range g.commands {
			fmt.Fprintf(&b, "  %-15s %s\n", strings.TrimSpace(c.name+" "+c.args), c.summary)
		}
	}
	b.WriteString(`
Other:
  help            Show this help message
  version         Show version information

Examples:
  socratic setup                  # Configure Gemini keys
  socratic start                  # Start daemon
  socratic analyze buggy.py       # Diagnose a file
  socratic stats ada              # Learner dashboard
`)
	fmt.Print(b.String())
}

// renderProgressBar draws value in [0,1] as a bar of the given width
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
