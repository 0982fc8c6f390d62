package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/socratic/internal/app"
	"github.com/felixgeelhaar/socratic/internal/config"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

// openApp builds the local application for one-shot commands. Logs go to
// stderr at warn level so command output stays readable.
func openApp(ctx context.Context) (*app.App, *config.LocalConfig, error) {
	dir, err := config.EnsureSocraticDir()
	if err != nil {
		return nil, nil, fmt.Errorf("setup socratic directory: %w", err)
	}
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	a, err := app.FromLocal(ctx, cfg, dir, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// cmdIndex rebuilds the embedding matrix in-process
func cmdIndex() error {
	ctx, cancel := signalContext()
	defer cancel()

	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c := a.Corpus.Current()
	fmt.Printf("Indexing %d snippets across %d error types with %s...\n", c.Len(), len(c.ErrorTypes()), a.EmbedderName())
	res, err := a.Retriever.Index(ctx)
	if err != nil {
		return fmt.Errorf("index corpus: %w", err)
	}
	fmt.Printf("✓ %d vectors stored in %s\n", res.Snippets, res.Duration.Round(time.Millisecond))
	return nil
}

// cmdAnalyze diagnoses a file against the corpus
func cmdAnalyze(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: socratic analyze FILE (use - for stdin)")
	}

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	code := string(data)
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("no code to analyze")
	}

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

	query := code
	serr, err := a.Checker.CheckSyntax(ctx, code)
	if err != nil {
		slog.Warn("syntax check failed", "error", err)
	}
	if serr != nil {
		fmt.Printf("Syntax error: %s\n", serr)
		query = serr.Msg + " syntax error python"
	}

	res, err := a.Retriever.FindSimilar(ctx, query)
	if err != nil {
		return fmt.Errorf("find similar: %w", err)
	}
	printAnalysis(res)
	return nil
}

func printAnalysis(res *retriever.Result) {
	fmt.Println("Analysis")
	fmt.Println("========")
	fmt.Printf("Status:     %s\n", res.Status)
	fmt.Printf("Concept:    %s\n", res.DetectedConcept)
	if res.Status == retriever.StatusSuccess {
		fmt.Printf("Confidence: %.2f\n", res.Confidence)
	}
	if f := res.Features.List(); len(f) > 0 {
		fmt.Printf("Structure:  %s\n", strings.Join(f, ", "))
	}
	if res.Hint != "" {
		fmt.Printf("Hint:       %s\n", res.Hint)
	}

	if top := res.TopMatch; top != nil {
		fmt.Println("\nClosest known bug")
		fmt.Println("-----------------")
		fmt.Printf("%s (%s, %s)\n", top.ErrorType, top.Topic, top.Level())
		if top.Hint != "" {
			fmt.Printf("Think about: %s\n", top.Hint)
		}
	}

	if len(res.Ranked) > 0 {
		fmt.Println("\nTop candidates")
		fmt.Println("--------------")
		for _, r := range res.Ranked {
			fmt.Printf("%-24s %-28s raw %.2f  adjusted %.2f\n", r.SnippetID, r.Topic, r.Raw, r.Score)
		}
	}
}

// cmdStats prints a learner's dashboard
func cmdStats(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: socratic stats USERNAME")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, _, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.Auth.UserByUsername(ctx, args[0])
	if err != nil {
		return fmt.Errorf("find learner %q: %w", args[0], err)
	}
	dash, err := a.Analytics.Dashboard(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("build dashboard: %w", err)
	}

	fmt.Printf("%s (%s)\n", user.Name(), dash.Experience)
	fmt.Println(strings.Repeat("=", len(user.Name())+len(dash.Experience)+3))
	fmt.Printf("Attempts:     %d (%d%% solved)\n", dash.Stats.Total, dash.SuccessRate)
	fmt.Printf("Total XP:     %.1f\n", dash.Profile.TotalXP)
	if dash.WeakestTopic != "" {
		fmt.Printf("Practice:     %s\n", dash.WeakestTopic)
	}
	if dash.RankTip != nil {
		fmt.Printf("Next rank:    %s\n", dash.RankTip.Message)
	}

	fmt.Println("\nSkills")
	fmt.Println("------")
	best := 1.0
	for _, s := range domain.AllSkills {
		best = max(best, dash.Skills.Get(s))
	}
	for _, s := range domain.AllSkills {
		v := dash.Skills.Get(s)
		fmt.Printf("%-16s %s %.1f\n", s, renderProgressBar(v/best, 20), v)
	}

	if len(dash.Sessions) > 0 {
		fmt.Println("\nRecent sessions")
		fmt.Println("---------------")
		for i, sess := range dash.Sessions {
			if i == 5 {
				break
			}
			fmt.Printf("%s  %-8s  %d attempts  %s\n",
				sess.StartedAt.Format("2006-01-02 15:04"), sess.Status, sess.Attempts, firstLine(sess.InitialCode))
		}
	}
	return nil
}

func firstLine(code string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(code), "\n")
	if len(line) > 40 {
		return line[:37] + "..."
	}
	return line
}
