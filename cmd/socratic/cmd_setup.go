package main

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/socratic/internal/config"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/sandbox"
)

func cmdSetup() error {
	fmt.Println("Socratic setup")
	fmt.Println(strings.Repeat("=", 14))

	dir, err := config.EnsureSocraticDir()
	if err != nil {
		return fmt.Errorf("create ~/.socratic: %w", err)
	}
	fmt.Printf("✓ %s\n", dir)

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); errors.Is(err, os.ErrNotExist) {
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		fmt.Println("✓ wrote default config.yaml")
	} else {
		fmt.Println("✓ config.yaml present")
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println()
	fmt.Println("Hints and fix judging need an LLM: Gemini, Claude or a local Ollama.")
	fmt.Println("Without one the tutor still retrieves similar bugs but runs offline.")
	fmt.Println()

	in := bufio.NewReader(os.Stdin)
	keys := existingKeys(cfg)
	asked := []struct {
		provider string
		label    string
		many     bool
	}{
		{"gemini", "Gemini API keys, comma separated", true},
		{"claude", "Claude API key", false},
	}
	changed := false
	for _, q := range asked {
		if n := len(keys[q.provider]); n > 0 {
			fmt.Printf("✓ %s: %d key(s) on file\n", q.provider, n)
			continue
		}
		fmt.Printf("%s (Enter to skip): ", q.label)
		line, _ := in.ReadString('\n')
		list := splitKeys(line)
		if len(list) == 0 {
			continue
		}
		if !q.many {
			list = list[:1]
		}
		keys[q.provider] = list
		changed = true
	}
	if changed {
		if err := config.SaveSecrets(keys); err != nil {
			return fmt.Errorf("save secrets: %w", err)
		}
		fmt.Println("✓ keys saved to secrets.yaml (mode 0600)")
	}

	fmt.Println()
	if err := checkDocker(); err != nil {
		fmt.Printf("⚠ Docker: %v. Syntax errors will come from tree-sitter.\n", err)
	} else {
		fmt.Println("✓ Docker reachable. Set sandbox.enabled for CPython error messages.")
	}

	fmt.Println()
	fmt.Println("Next: 'socratic start', then 'socratic doctor' to check everything.")
	return nil
}

// existingKeys collects the keys already loaded from secrets.yaml so a
// save does not drop them.
func existingKeys(cfg *config.LocalConfig) map[string][]string {
	keys := make(map[string][]string)
	for name, p := range cfg.LLM.Providers {
		if p != nil && len(p.APIKeys) > 0 {
			keys[name] = slices.Clone(p.APIKeys)
		}
	}
	return keys
}

func splitKeys(line string) []string {
	var out []string
	for k := range strings.SplitSeq(line, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// check is one line of `socratic doctor`. A failing optional check only
// warns.
type check struct {
	name     string
	optional bool
	run      func() (string, error)
}

func cmdDoctor() error {
	cfg, cfgErr := config.LoadLocalConfig()

	checks := []check{
		{name: "Directory", run: func() (string, error) {
			dir, err := config.SocraticDir()
			if err != nil {
				return "", err
			}
			if _, err := os.Stat(dir); err != nil {
				return "", errors.New("missing, run 'socratic setup'")
			}
			return dir, nil
		}},
		{name: "Config", run: func() (string, error) { return "loaded", cfgErr }},
		{name: "Docker", optional: true, run: func() (string, error) { return "reachable", checkDocker() }},
		{name: "Daemon", optional: true, run: func() (string, error) {
			if !isRunning() {
				return "", errors.New("not running, run 'socratic start'")
			}
			return "running at " + daemonAddr, nil
		}},
	}
	if cfgErr == nil {
		checks = append(checks, check{name: "Corpus", run: func() (string, error) {
			reg := corpus.NewRegistry(cfg.Corpus.Path, nil)
			if err := reg.Load(); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d snippets (%s)", reg.Current().Len(), cmp.Or(cfg.Corpus.Path, "built-in")), nil
		}})
		for _, name := range sortedProviders(cfg) {
			p := cfg.LLM.Providers[name]
			if !p.Enabled {
				continue
			}
			checks = append(checks, check{name: "LLM " + name, optional: true, run: func() (string, error) {
				return providerReady(name, p)
			}})
		}
	}

	failed := 0
	for _, c := range checks {
		detail, err := c.run()
		switch {
		case err == nil:
			fmt.Printf("✓ %-12s %s\n", c.name, detail)
		case c.optional:
			fmt.Printf("⚠ %-12s %v\n", c.name, err)
		default:
			fmt.Printf("✗ %-12s %v\n", c.name, err)
			failed++
		}
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d required check(s) failed", failed)
	}
	fmt.Println("All required checks passed.")
	return nil
}

func providerReady(name string, p *config.ProviderConfig) (string, error) {
	if name == "ollama" {
		if err := checkOllama(p.URL); err != nil {
			return "", err
		}
		return "model " + p.Model, nil
	}
	if p.APIKey() == "" {
		return "", errors.New("no API key, run 'socratic setup'")
	}
	return fmt.Sprintf("%d key(s), model %s", len(p.APIKeys), p.Model), nil
}

func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir, _ := config.SocraticDir()

	section := func(title string, kv ...string) {
		fmt.Printf("%s:\n", title)
		for i := 0; i+1 < len(kv); i += 2 {
			fmt.Printf("  %-18s %s\n", kv[i]+":", kv[i+1])
		}
	}

	section("Daemon",
		"bind", fmt.Sprintf("%s:%d", cfg.Daemon.Bind, cfg.Daemon.Port),
		"log_level", cfg.Daemon.LogLevel)

	llmRows := []string{
		"default_provider", cfg.LLM.DefaultProvider,
		"resilient", fmt.Sprint(cfg.LLM.Resilient),
	}
	for _, name := range sortedProviders(cfg) {
		p := cfg.LLM.Providers[name]
		if !p.Enabled {
			continue
		}
		ready := "✓"
		if name != "ollama" && p.APIKey() == "" {
			ready = "✗ no key"
		}
		llmRows = append(llmRows, name, fmt.Sprintf("%s %s", p.Model, ready))
	}
	section("LLM", llmRows...)

	section("Retrieval",
		"embedding", fmt.Sprintf("%s (dim %d)", cfg.Embedding.Provider, cfg.Embedding.Dimension),
		"threshold", fmt.Sprintf("%.2f, %.2f on syntax errors", cfg.Retrieval.ConfidenceThreshold, cfg.Retrieval.SyntaxThreshold),
		"adjustments", fmt.Sprintf("syntax +%.2f/-%.2f, structure -%.2f",
			cfg.Retrieval.SyntaxBonus, cfg.Retrieval.SyntaxPenalty, cfg.Retrieval.StructurePenalty),
		"redis_cache", fmt.Sprint(cfg.Redis.Enabled))

	section("Storage",
		"driver", cfg.Storage.Driver,
		"queue", fmt.Sprint(cfg.Queue.Enabled),
		"sandbox", fmt.Sprintf("%t (%s)", cfg.Sandbox.Enabled, cfg.Sandbox.Image))

	fmt.Printf("\nRead from %s\n", filepath.Join(dir, "config.yaml"))
	return nil
}

func sortedProviders(cfg *config.LocalConfig) []string {
	var names []string
	for name, p := range cfg.LLM.Providers {
		if p != nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// checkDocker pings the engine the same way the sandbox does.
func checkDocker() error {
	b, err := sandbox.NewDockerBackend()
	if err != nil {
		return err
	}
	return b.Close()
}

func checkOllama(url string) error {
	url = cmp.Or(url, "http://localhost:11434")
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url + "/api/tags")
	if err != nil {
		return fmt.Errorf("not reachable at %s", url)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s answered %s", url, resp.Status)
	}
	return nil
}
