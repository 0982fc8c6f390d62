// Package taxonomy holds the static error hierarchy used to name the
// concept behind a retrieved bug.
package taxonomy

// Root is the top of the hierarchy and the answer whenever errors do not
// share a single parent.
const Root = "Root"

var tree = map[string][]string{
	Root: {"Logic_Errors", "Syntax_Errors", "Runtime_Errors"},

	"Logic_Errors":   {"Loops", "Recursion", "Conditionals", "Data_Structures"},
	"Syntax_Errors":  {"Indentation", "Typos", "Missing_Symbols"},
	"Runtime_Errors": {"ZeroDivision", "IndexError", "TypeError"},

	"Loops":           {"Infinite_Loop", "Off_By_One", "For_Loop_Range"},
	"Recursion":       {"Missing_Base_Case", "Stack_Overflow", "Incorrect_Recursive_Call"},
	"Conditionals":    {"Incorrect_Comparison", "Else_If_Order"},
	"Data_Structures": {"KeyError", "List_Mutation"},
}

var parents = buildParents()

func buildParents() map[string]string {
	m := make(map[string]string)
	for parent, children := range tree {
		for _, child := range children {
			m[child] = parent
		}
	}
	return m
}

// Parent returns the parent of node. Unknown nodes hang off Root.
func Parent(node string) string {
	if p, ok := parents[node]; ok {
		return p
	}
	return Root
}

// Children returns the direct children of node, or nil for leaves.
func Children(node string) []string {
	c := tree[node]
	if c == nil {
		return nil
	}
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// Contains reports whether node appears anywhere in the hierarchy.
func Contains(node string) bool {
	if node == Root {
		return true
	}
	_, ok := parents[node]
	return ok
}

// Path returns the chain from Root down to node. Unknown nodes yield
// [Root, node].
func Path(node string) []string {
	if node == Root {
		return []string{Root}
	}
	var chain []string
	for cur := node; cur != Root; cur = Parent(cur) {
		chain = append(chain, cur)
		if len(chain) > len(parents)+1 {
			break
		}
	}
	chain = append(chain, Root)
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// CommonAncestor finds the nearest shared parent of the given errors.
// An empty list, or errors with more than one distinct parent, give Root.
func CommonAncestor(errors []string) string {
	if len(errors) == 0 {
		return Root
	}
	seen := make(map[string]struct{})
	var last string
	for _, e := range errors {
		last = Parent(e)
		seen[last] = struct{}{}
	}
	if len(seen) == 1 {
		return last
	}
	return Root
}
