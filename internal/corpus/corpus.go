// Package corpus loads the curated database of known buggy snippets.
package corpus

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

var (
	ErrEmptyID     = errors.New("snippet without id")
	ErrDuplicateID = errors.New("duplicate snippet id")
)

//go:embed seed.json
var seedJSON []byte

// file is the on-disk layout of a corpus.
type file struct {
	Snippets []*domain.Snippet `json:"snippets"`
}

// Corpus is an immutable snapshot of the snippet database.
type Corpus struct {
	snippets    []*domain.Snippet
	byID        map[string]*domain.Snippet
	byErrorType map[string][]*domain.Snippet
	errorOrder  []string
}

// New indexes snippets. Snippets must have unique, non-empty ids.
func New(snippets []*domain.Snippet) (*Corpus, error) {
	c := &Corpus{
		snippets:    make([]*domain.Snippet, 0, len(snippets)),
		byID:        make(map[string]*domain.Snippet, len(snippets)),
		byErrorType: make(map[string][]*domain.Snippet),
	}

	for i, s := range snippets {
		if s == nil {
			continue
		}
		if s.ID == "" {
			return nil, fmt.Errorf("%w at index %d", ErrEmptyID, i)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		c.snippets = append(c.snippets, s)
		c.byID[s.ID] = s

		kind := s.ErrorKind()
		if _, seen := c.byErrorType[kind]; !seen {
			c.errorOrder = append(c.errorOrder, kind)
		}
		c.byErrorType[kind] = append(c.byErrorType[kind], s)
	}

	return c, nil
}

// Empty returns a corpus with no snippets.
func Empty() *Corpus {
	c, _ := New(nil)
	return c
}

// Parse decodes a corpus from its JSON form.
func Parse(data []byte) (*Corpus, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	return New(f.Snippets)
}

// Load reads a corpus file from disk.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return Parse(data)
}

// Seed returns the built-in starter corpus.
func Seed() *Corpus {
	c, err := Parse(seedJSON)
	if err != nil {
		panic(fmt.Sprintf("corpus: invalid seed: %v", err))
	}
	return c
}

// Len returns the number of snippets.
func (c *Corpus) Len() int {
	return len(c.snippets)
}

// Snippets returns all snippets in file order.
func (c *Corpus) Snippets() []*domain.Snippet {
	out := make([]*domain.Snippet, len(c.snippets))
	copy(out, c.snippets)
	return out
}

// Grouped returns all snippets grouped by error type, groups ordered by
// first appearance.
func (c *Corpus) Grouped() []*domain.Snippet {
	out := make([]*domain.Snippet, 0, len(c.snippets))
	for _, kind := range c.errorOrder {
		out = append(out, c.byErrorType[kind]...)
	}
	return out
}

// ByID returns a snippet by id.
func (c *Corpus) ByID(id string) (*domain.Snippet, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// ByErrorType returns the snippets sharing an error type.
func (c *Corpus) ByErrorType(errorType string) []*domain.Snippet {
	list := c.byErrorType[errorType]
	out := make([]*domain.Snippet, len(list))
	copy(out, list)
	return out
}

// ErrorTypes returns every error type in first-appearance order.
func (c *Corpus) ErrorTypes() []string {
	out := make([]string, len(c.errorOrder))
	copy(out, c.errorOrder)
	return out
}

// Siblings returns up to limit other snippets with the same error type.
func (c *Corpus) Siblings(s *domain.Snippet, limit int) []*domain.Snippet {
	var out []*domain.Snippet
	for _, other := range c.byErrorType[s.ErrorKind()] {
		if other.ID == s.ID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, other)
	}
	return out
}

// Novice returns up to limit Novice snippets in grouped order.
func (c *Corpus) Novice(limit int) []*domain.Snippet {
	return c.filter(limit, func(s *domain.Snippet) bool {
		return s.Level() == domain.DifficultyNovice
	})
}

// NoviceByTopic returns up to limit Novice snippets whose topic equals topic.
func (c *Corpus) NoviceByTopic(topic string, limit int) []*domain.Snippet {
	return c.filter(limit, func(s *domain.Snippet) bool {
		return s.Level() == domain.DifficultyNovice && s.Topic == topic
	})
}

// Related returns snippets whose topic or error type contains topic, or
// that reward the topic as a skill. Skill names match case-insensitively.
func (c *Corpus) Related(topic string) []*domain.Snippet {
	skill, isSkill := domain.ParseSkill(topic)
	return c.filter(0, func(s *domain.Snippet) bool {
		if strings.Contains(s.Topic, topic) || strings.Contains(s.ErrorType, topic) {
			return true
		}
		return isSkill && s.SkillRewards.Get(skill) > 0
	})
}

func (c *Corpus) filter(limit int, keep func(*domain.Snippet) bool) []*domain.Snippet {
	var out []*domain.Snippet
	for _, s := range c.Grouped() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
