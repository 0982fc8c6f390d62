// Package analyzer derives structural tags from Python source using
// tree-sitter. The tags steer retrieval scoring: a query without loops
// should not be matched to loop bugs, and a query that does not parse
// should be matched to syntax bugs.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Tag is a structural property of a code sample.
type Tag string

const (
	TagLoops        Tag = "Loops"
	TagConditionals Tag = "Conditionals"
	TagFunctions    Tag = "Functions"
	TagClasses      Tag = "Classes"
	TagRecursion    Tag = "Recursion"
	TagSyntax       Tag = "Syntax"
)

// Features is the set of tags found in a code sample.
type Features map[Tag]struct{}

// NewFeatures builds a set from tags.
func NewFeatures(tags ...Tag) Features {
	f := make(Features, len(tags))
	for _, t := range tags {
		f[t] = struct{}{}
	}
	return f
}

// Has reports whether t is present.
func (f Features) Has(t Tag) bool {
	_, ok := f[t]
	return ok
}

// List returns the tags in sorted order.
func (f Features) List() []string {
	out := make([]string, 0, len(f))
	for t := range f {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (f Features) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.List())
}

// UnmarshalJSON decodes a tag array.
func (f *Features) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*f = make(Features, len(tags))
	for _, t := range tags {
		(*f)[Tag(t)] = struct{}{}
	}
	return nil
}

// SyntaxError locates the first parse failure in a sample.
type SyntaxError struct {
	Msg  string `json:"msg"`
	Line int    `json:"line"`
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at line %d", e.Msg, e.Line)
}

// SyntaxChecker validates Python source. A nil *SyntaxError with a nil
// error means the code parses; a non-nil error means the check itself
// could not run.
type SyntaxChecker interface {
	CheckSyntax(ctx context.Context, code string) (*SyntaxError, error)
}

// Analyzer parses Python with tree-sitter.
type Analyzer struct {
	logger *slog.Logger
}

// New creates an Analyzer.
func New(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

func (a *Analyzer) parse(ctx context.Context, code string) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	return tree, nil
}

// Analyze returns the structural tags of code. Code that fails to parse
// yields only TagSyntax.
func (a *Analyzer) Analyze(ctx context.Context, code string) (Features, error) {
	tree, err := a.parse(ctx, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() || layoutError(root) != nil {
		return NewFeatures(TagSyntax), nil
	}

	src := []byte(code)
	features := NewFeatures()
	var funcs []*sitter.Node

	walk(root, func(n *sitter.Node) {
		// async def and async for are separate node kinds in CPython's ast.
		if isAsync(n) {
			return
		}
		switch n.Type() {
		case "for_statement", "while_statement":
			features[TagLoops] = struct{}{}
		case "if_statement":
			features[TagConditionals] = struct{}{}
		case "function_definition":
			features[TagFunctions] = struct{}{}
			funcs = append(funcs, n)
		case "class_definition":
			features[TagClasses] = struct{}{}
		}
	})

	for _, fn := range funcs {
		if callsItself(fn, src) {
			features[TagRecursion] = struct{}{}
			break
		}
	}

	a.logger.Debug("analyzed code", "features", features.List())
	return features, nil
}

// CheckSyntax reports the first parse failure, if any.
func (a *Analyzer) CheckSyntax(ctx context.Context, code string) (*SyntaxError, error) {
	tree, err := a.parse(ctx, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return layoutError(root), nil
	}

	bad := firstError(root)
	if bad == nil {
		return &SyntaxError{Msg: "invalid syntax", Line: 1}, nil
	}

	msg := "invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("expected '%s'", bad.Type())
	}
	return &SyntaxError{Msg: msg, Line: int(bad.StartPoint().Row) + 1}, nil
}

// callsItself reports whether the body of fn contains a call to a bare
// identifier equal to the function's own name.
func callsItself(fn *sitter.Node, src []byte) bool {
	nameNode := fn.ChildByFieldName("name")
	if nameNode == nil {
		return false
	}
	name := nameNode.Content(src)

	found := false
	walk(fn, func(n *sitter.Node) {
		if found || n.Type() != "call" {
			return
		}
		callee := n.ChildByFieldName("function")
		if callee != nil && callee.Type() == "identifier" && callee.Content(src) == name {
			found = true
		}
	})
	return found
}

func isAsync(n *sitter.Node) bool {
	first := n.Child(0)
	return first != nil && first.Type() == "async"
}

// layoutError finds what the grammar accepts but CPython rejects: bodies
// that are not indented, stray indentation and Python 2 print/exec
// statements. It assumes root carries no ERROR nodes.
func layoutError(root *sitter.Node) *SyntaxError {
	var found *SyntaxError
	report := func(msg string, row uint32) {
		line := int(row) + 1
		if found == nil || line < found.Line {
			found = &SyntaxError{Msg: msg, Line: line}
		}
	}

	checkColumns := func(parent *sitter.Node, want uint32) {
		prevEnd := -1
		for _, stmt := range statements(parent) {
			p := stmt.StartPoint()
			// Statements joined with ';' share a line.
			if int(p.Row) != prevEnd && p.Column != want {
				report("unexpected indent", p.Row)
			}
			prevEnd = int(stmt.EndPoint().Row)
		}
	}

	checkColumns(root, 0)
	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "print_statement":
			report("Missing parentheses in call to 'print'", n.StartPoint().Row)
		case "exec_statement":
			report("Missing parentheses in call to 'exec'", n.StartPoint().Row)
		case "block":
			header := n.Parent()
			if header == nil {
				return
			}
			colon := n.PrevSibling()
			stmts := statements(n)
			if len(stmts) == 0 {
				row := header.StartPoint().Row
				if colon != nil {
					row = colon.EndPoint().Row
				}
				report("expected an indented block", row+1)
				return
			}
			first := stmts[0].StartPoint()
			if colon != nil && first.Row == colon.EndPoint().Row {
				// Inline body such as "if x: return".
				return
			}
			if first.Column <= header.StartPoint().Column {
				report("expected an indented block", first.Row)
				return
			}
			checkColumns(n, first.Column)
		}
	})
	return found
}

// statements returns the named children of n, comments excluded.
func statements(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// firstError returns the earliest ERROR or MISSING node in document order.
func firstError(root *sitter.Node) *sitter.Node {
	var found *sitter.Node
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if found != nil || n == nil {
			return
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			found = n
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
	return found
}

// walk visits n and all of its named descendants depth-first.
func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

// Ensure Analyzer implements SyntaxChecker
var _ SyntaxChecker = (*Analyzer)(nil)
