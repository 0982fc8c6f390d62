// Package retriever ranks the known-bug corpus against a learner's code.
//
// Ranking is a single pass: embed the query, take the cosine similarity
// against every stored snippet vector, nudge each score by how well the
// snippet's topic agrees with the query's structure, and accept the best
// match only if it clears a confidence threshold.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/socratic/internal/analyzer"
	"github.com/felixgeelhaar/socratic/internal/corpus"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/embedding"
	"github.com/felixgeelhaar/socratic/internal/metrics"
	"github.com/felixgeelhaar/socratic/internal/taxonomy"
)

// Status classifies a retrieval result.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusLowConfidence Status = "low_confidence"
	StatusError         Status = "error"
)

const (
	ConceptSystemError = "System Error"
	ConceptGeneral     = "General Debugging"

	HintNotInitialized = "Database not initialized. Run 'socratic index' to build it."
	HintNoMatches      = "No matches found."
	HintUnknownPattern = "Your code doesn't match our known error patterns."
)

// ErrNoSnippets is returned by Index when the corpus is empty.
var ErrNoSnippets = errors.New("corpus has no snippets")

// Config tunes scoring.
type Config struct {
	// ConfidenceThreshold is the minimum adjusted score for a match.
	ConfidenceThreshold float64
	// SyntaxThreshold replaces ConfidenceThreshold when the query does not parse.
	SyntaxThreshold float64
	// SyntaxBonus is added to Syntax-topic snippets for unparseable queries.
	SyntaxBonus float64
	// SyntaxPenalty is subtracted from other snippets for unparseable queries.
	SyntaxPenalty float64
	// StructurePenalty is subtracted from Loops/Recursion snippets when the
	// query has no such construct.
	StructurePenalty float64
	// MaxWarmups caps the sibling snippets offered as warm-ups.
	MaxWarmups int
	// TopK caps the ranked list returned for diagnostics.
	TopK int
	// BatchSize is the number of snippets embedded per call when indexing.
	BatchSize int
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.60,
		SyntaxThreshold:     0.40,
		SyntaxBonus:         0.5,
		SyntaxPenalty:       0.2,
		StructurePenalty:    0.6,
		MaxWarmups:          5,
		TopK:                3,
		BatchSize:           32,
	}
}

// Vector is a stored snippet embedding.
type Vector struct {
	SnippetID string
	Values    []float32
}

// VectorStore persists snippet embeddings per embedder.
type VectorStore interface {
	LoadVectors(ctx context.Context, embedder string) ([]Vector, error)
	ReplaceVectors(ctx context.Context, embedder string, vectors []Vector) error
}

// FeatureAnalyzer extracts structural tags from code.
type FeatureAnalyzer interface {
	Analyze(ctx context.Context, code string) (analyzer.Features, error)
}

// CorpusSource yields the current corpus snapshot.
type CorpusSource interface {
	Current() *corpus.Corpus
}

// Ranked is one scored candidate.
type Ranked struct {
	SnippetID string  `json:"snippet_id"`
	Topic     string  `json:"topic"`
	Raw       float64 `json:"raw_score"`
	Score     float64 `json:"score"`
}

// Result is the outcome of FindSimilar.
type Result struct {
	Status           Status            `json:"status"`
	TopMatch         *domain.Snippet   `json:"top_match"`
	WarmupCandidates []*domain.Snippet `json:"warmup_candidates"`
	DetectedConcept  string            `json:"detected_concept"`
	Hint             string            `json:"hint,omitempty"`
	Confidence       float64           `json:"confidence"`
	Features         analyzer.Features `json:"features"`
	Ranked           []Ranked          `json:"ranked,omitempty"`
}

// IndexResult summarizes an Index run.
type IndexResult struct {
	Embedder string        `json:"embedder"`
	Snippets int           `json:"snippets"`
	Duration time.Duration `json:"duration"`
}

// Retriever performs the similarity search.
type Retriever struct {
	cfg      Config
	embedder embedding.Embedder
	store    VectorStore
	corpus   CorpusSource
	analyzer FeatureAnalyzer
	logger   *slog.Logger

	mu     sync.Mutex
	matrix []Vector
}

// New creates a Retriever.
func New(cfg Config, embedder embedding.Embedder, store VectorStore, src CorpusSource, an FeatureAnalyzer, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		corpus:   src,
		analyzer: an,
		logger:   logger,
	}
}

// Config returns the scoring parameters.
func (r *Retriever) Config() Config {
	return r.cfg
}

// EmbedderName identifies the vectors this retriever compares against.
func (r *Retriever) EmbedderName() string {
	return r.embedder.Name()
}

// Corpus returns the current corpus snapshot.
func (r *Retriever) Corpus() *corpus.Corpus {
	return r.corpus.Current()
}

// Ready reports whether the embedding matrix is loaded.
func (r *Retriever) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matrix) > 0
}

// Invalidate drops the in-memory matrix so the next query reloads it.
func (r *Retriever) Invalidate() {
	r.mu.Lock()
	r.matrix = nil
	r.mu.Unlock()
}

// vectors returns the loaded matrix, loading it on first use. A failed or
// empty load is not cached.
func (r *Retriever) vectors(ctx context.Context) ([]Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.matrix) > 0 {
		return r.matrix, nil
	}

	vecs, err := r.store.LoadVectors(ctx, r.embedder.Name())
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	if len(vecs) > 0 {
		r.logger.Info("embedding matrix loaded", "embedder", r.embedder.Name(), "vectors", len(vecs))
	}
	r.matrix = vecs
	return vecs, nil
}

// Adjust applies the structural score adjustment for one snippet. The
// first matching rule wins.
func Adjust(cfg Config, score float64, query analyzer.Features, topic string) float64 {
	switch {
	case query.Has(analyzer.TagSyntax):
		if strings.Contains(topic, "Syntax") {
			return score + cfg.SyntaxBonus
		}
		return score - cfg.SyntaxPenalty
	case strings.Contains(topic, "Loops") && !query.Has(analyzer.TagLoops):
		return score - cfg.StructurePenalty
	case strings.Contains(topic, "Recursion") && !query.Has(analyzer.TagRecursion):
		return score - cfg.StructurePenalty
	}
	return score
}

// FindSimilar ranks the corpus against code. Infrastructure problems with
// the stored matrix are reported as a StatusError result; embedding
// failures are returned as errors.
func (r *Retriever) FindSimilar(ctx context.Context, code string) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RetrievalLatency.Observe(time.Since(start).Seconds()) }()

	res, err := r.findSimilar(ctx, code)
	if err != nil {
		metrics.RetrievalResults.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.RetrievalResults.WithLabelValues(string(res.Status)).Inc()
	return res, nil
}

func (r *Retriever) findSimilar(ctx context.Context, code string) (*Result, error) {
	matrix, err := r.vectors(ctx)
	if err != nil {
		r.logger.Error("retriever not initialized", "error", err)
	}
	if len(matrix) == 0 {
		return &Result{
			Status:           StatusError,
			DetectedConcept:  ConceptSystemError,
			Hint:             HintNotInitialized,
			WarmupCandidates: []*domain.Snippet{},
		}, nil
	}

	features, err := r.analyzer.Analyze(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	syntaxErr := features.Has(analyzer.TagSyntax)

	query, err := r.embedder.Embed(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	snap := r.corpus.Current()
	type scored struct {
		snippet *domain.Snippet
		raw     float64
		score   float64
	}
	ranked := make([]scored, 0, len(matrix))
	for _, v := range matrix {
		snippet, ok := snap.ByID(v.SnippetID)
		if !ok {
			continue
		}
		raw := embedding.CosineSimilarity(query, v.Values)
		ranked = append(ranked, scored{
			snippet: snippet,
			raw:     raw,
			score:   Adjust(r.cfg, raw, features, snippet.Topic),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	res := &Result{Features: features, WarmupCandidates: []*domain.Snippet{}}
	for i := 0; i < len(ranked) && i < r.cfg.TopK; i++ {
		res.Ranked = append(res.Ranked, Ranked{
			SnippetID: ranked[i].snippet.ID,
			Topic:     ranked[i].snippet.Topic,
			Raw:       ranked[i].raw,
			Score:     ranked[i].score,
		})
	}

	if len(ranked) == 0 {
		res.Status = StatusLowConfidence
		res.DetectedConcept = ConceptGeneral
		res.Hint = HintNoMatches
		return res, nil
	}

	best := ranked[0]
	threshold := r.cfg.ConfidenceThreshold
	if syntaxErr {
		threshold = r.cfg.SyntaxThreshold
	}
	if best.score < threshold {
		r.logger.Debug("best match below threshold",
			"snippet", best.snippet.ID, "score", best.score, "threshold", threshold)
		res.Status = StatusLowConfidence
		res.DetectedConcept = ConceptGeneral
		res.Hint = HintUnknownPattern
		return res, nil
	}

	top := best.snippet
	warmups := snap.Siblings(top, r.cfg.MaxWarmups)
	if len(warmups) == 0 {
		warmups = []*domain.Snippet{top}
	}

	res.Status = StatusSuccess
	res.TopMatch = top
	res.WarmupCandidates = warmups
	res.DetectedConcept = taxonomy.CommonAncestor([]string{top.ErrorType})
	res.Confidence = math.Round(best.score*100) / 100
	return res, nil
}

// Index embeds every corpus snippet with the active embedder and replaces
// the stored matrix.
func (r *Retriever) Index(ctx context.Context) (*IndexResult, error) {
	start := time.Now()
	snippets := r.corpus.Current().Snippets()
	if len(snippets) == 0 {
		return nil, ErrNoSnippets
	}

	batch := r.cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}

	vectors := make([]Vector, 0, len(snippets))
	for lo := 0; lo < len(snippets); lo += batch {
		hi := min(lo+batch, len(snippets))
		texts := make([]string, 0, hi-lo)
		for _, s := range snippets[lo:hi] {
			texts = append(texts, s.Code)
		}

		vecs, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed snippets %d-%d: %w", lo, hi, err)
		}
		for i, vec := range vecs {
			vectors = append(vectors, Vector{SnippetID: snippets[lo+i].ID, Values: vec})
		}
	}

	if err := r.store.ReplaceVectors(ctx, r.embedder.Name(), vectors); err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}

	r.mu.Lock()
	r.matrix = vectors
	r.mu.Unlock()

	result := &IndexResult{
		Embedder: r.embedder.Name(),
		Snippets: len(vectors),
		Duration: time.Since(start),
	}
	r.logger.Info("corpus indexed", "embedder", result.Embedder, "snippets", result.Snippets, "duration", result.Duration)
	return result, nil
}
