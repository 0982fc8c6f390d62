package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/socratic/internal/config"
)

// logTailLines is how much of the daemon log `socratic logs` shows.
const logTailLines = 40

var probeClient = &http.Client{Timeout: time.Second}

// waitFor polls cond every interval, printing a dot per poll, until it
// holds or tries run out.
func waitFor(cond func() bool, tries int, interval time.Duration) bool {
	for range tries {
		time.Sleep(interval)
		if cond() {
			fmt.Println(" ✓")
			return true
		}
		fmt.Print(".")
	}
	fmt.Println(" ✗")
	return false
}

func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureSocraticDir()
	if err != nil {
		return fmt.Errorf("setup socratic directory: %w", err)
	}
	bin, err := findDaemonBinary()
	if err != nil {
		return err
	}

	daemon := exec.Command(bin)
	daemon.Dir = dir
	configureDaemonProcess(daemon)
	if err := daemon.Start(); err != nil {
		return fmt.Errorf("start %s: %w", bin, err)
	}
	// Reaped by init once we exit.
	_ = daemon.Process.Release()

	// A cold start embeds the whole corpus, which takes a while against a
	// remote embedder.
	fmt.Print("Starting daemon")
	if !waitFor(isRunning, 40, 500*time.Millisecond) {
		return errors.New("daemon did not come up, see 'socratic logs'")
	}
	fmt.Printf("Daemon running at %s\n", daemonAddr)
	return nil
}

// readPID returns the pid recorded by socraticd.
func readPID() (int, error) {
	dir, err := config.SocraticDir()
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("PID file holds %q", strings.TrimSpace(string(raw)))
	}
	return pid, nil
}

func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, err := readPID()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	fmt.Print("Stopping daemon")
	if !waitFor(func() bool { return !isRunning() }, 50, 100*time.Millisecond) {
		return fmt.Errorf("daemon (pid %d) still answering after SIGTERM", pid)
	}
	return nil
}

// daemonStatus is the body of GET /v1/status.
type daemonStatus struct {
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	Uptime         string   `json:"uptime"`
	LLMProviders   []string `json:"llm_providers"`
	TutorOnline    bool     `json:"tutor_online"`
	Embedder       string   `json:"embedder"`
	CorpusSnippets int      `json:"corpus_snippets"`
	IndexReady     bool     `json:"index_ready"`
	QueuedReindex  bool     `json:"queued_reindex"`
}

func fetchStatus() (*daemonStatus, error) {
	resp, err := probeClient.Get(daemonAddr + "/v1/status")
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get status: %s", resp.Status)
	}
	var st daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}
	st, err := fetchStatus()
	if err != nil {
		return err
	}

	tutor, reindex := "offline (set an API key with 'socratic setup')", "inline"
	if st.TutorOnline {
		tutor = "online"
	}
	if st.QueuedReindex {
		reindex = "queued (RabbitMQ)"
	}

	rows := [][2]string{
		{"Status", fmt.Sprintf("%s (up %s)", st.Status, st.Uptime)},
		{"Version", st.Version},
		{"Tutor", tutor},
		{"Providers", strings.Join(st.LLMProviders, ", ")},
		{"Embedder", st.Embedder},
		{"Corpus", fmt.Sprintf("%d snippets (index ready: %v)", st.CorpusSnippets, st.IndexReady)},
		{"Reindex", reindex},
		{"Address", daemonAddr},
	}
	for _, r := range rows {
		fmt.Printf("%-10s %s\n", r[0]+":", r[1])
	}
	return nil
}

func cmdLogs() error {
	dir, err := config.SocraticDir()
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "logs", "socraticd.log"))
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("No log file yet. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	for _, line := range tailLines(string(raw), logTailLines) {
		fmt.Println(line)
	}
	return nil
}

// tailLines returns the last n lines of s.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// isRunning asks the daemon's health endpoint.
func isRunning() bool {
	resp, err := probeClient.Get(daemonAddr + "/v1/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary prefers PATH, then a socraticd next to this binary,
// then the usual build locations.
func findDaemonBinary() (string, error) {
	if p, err := exec.LookPath("socraticd"); err == nil {
		return p, nil
	}
	var candidates []string
	if self, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(self), "socraticd"))
	}
	candidates = append(candidates, "/usr/local/bin/socraticd", "./socraticd", "./cmd/socraticd/socraticd")
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", errors.New("socraticd not found, build it with 'go build ./cmd/socraticd'")
}
