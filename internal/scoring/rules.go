// Package scoring rates postings against a data-driven rule tree of weighted
// patterns, plus salary and location terms.
package scoring

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned for a malformed rule tree or pattern.
var ErrInvalidRule = errors.New("invalid scoring rule")

// Pattern is one weighted regular expression.
type Pattern struct {
	Source string
	Points float64
	re     *regexp.Regexp
}

// Leaf holds the patterns of one category, all sharing the same flags.
type Leaf struct {
	CaseSensitive bool
	Patterns      []Pattern // sorted by Source
}

// RuleTree maps labels to leaves or nested trees. Every leaf is evaluated
// independently and scores add up; overlapping matches compound.
type RuleTree struct {
	Leaf     *Leaf
	Children map[string]*RuleTree
}

// Numeric flags are a bit set; this bit selects case-insensitive matching.
const ignoreCaseFlag = 2

// ParseRuleTree builds a tree from decoded YAML or JSON. A mapping holding a
// "patterns" key is a leaf; every other mapping is a nested tree.
func ParseRuleTree(raw map[string]any) (*RuleTree, error) {
	return parseNode(raw, "")
}

func parseNode(raw map[string]any, path string) (*RuleTree, error) {
	if patterns, ok := raw["patterns"]; ok {
		leaf, err := parseLeaf(patterns, raw["flags"], path)
		if err != nil {
			return nil, err
		}
		return &RuleTree{Leaf: leaf}, nil
	}

	tree := &RuleTree{Children: make(map[string]*RuleTree, len(raw))}
	for label, v := range raw {
		child, ok := asMap(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T, want a mapping", ErrInvalidRule, join(path, label), v)
		}
		node, err := parseNode(child, join(path, label))
		if err != nil {
			return nil, err
		}
		tree.Children[label] = node
	}
	return tree, nil
}

func parseLeaf(rawPatterns, rawFlags any, path string) (*Leaf, error) {
	caseSensitive, err := parseFlags(rawFlags)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, path, err)
	}
	patterns, ok := asMap(rawPatterns)
	if !ok {
		return nil, fmt.Errorf("%w: %s.patterns is %T, want a mapping", ErrInvalidRule, path, rawPatterns)
	}

	leaf := &Leaf{CaseSensitive: caseSensitive}
	for src, v := range patterns {
		points, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s: points for %q is %T", ErrInvalidRule, path, src, v)
		}
		expr := src
		if !caseSensitive {
			expr = "(?i)" + src
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q: %v", ErrInvalidRule, path, src, err)
		}
		leaf.Patterns = append(leaf.Patterns, Pattern{Source: src, Points: points, re: re})
	}
	sort.Slice(leaf.Patterns, func(i, j int) bool {
		return leaf.Patterns[i].Source < leaf.Patterns[j].Source
	})
	return leaf, nil
}

// parseFlags reports whether a leaf is case-sensitive. Absent flags mean
// case-insensitive matching.
func parseFlags(v any) (bool, error) {
	switch f := v.(type) {
	case nil:
		return false, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "", "i", "ignore_case", "ignorecase":
			return false, nil
		case "case_sensitive", "0":
			return true, nil
		default:
			return false, fmt.Errorf("unknown flags %q", f)
		}
	}
	n, ok := asFloat(v)
	if !ok {
		return false, fmt.Errorf("flags is %T", v)
	}
	return int(n)&ignoreCaseFlag == 0, nil
}

// LoadRuleTree reads a rule tree from a YAML or JSON file.
func LoadRuleTree(path string) (*RuleTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule tree: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidRule, path, err)
	}
	return ParseRuleTree(raw)
}

// Score sums, over every leaf, the points of each pattern found in text.
// A pattern counts once no matter how often it occurs.
func Score(text string, tree *RuleTree) float64 {
	if text == "" {
		return 0
	}
	total := 0.0
	walk(tree, func(p Pattern) {
		if p.re.MatchString(text) {
			total += p.Points
		}
	})
	return total
}

// Matches returns the sources of every matching pattern, in traversal order.
func Matches(text string, tree *RuleTree) []string {
	var out []string
	walk(tree, func(p Pattern) {
		if p.re.MatchString(text) {
			out = append(out, p.Source)
		}
	})
	return out
}

// Len returns the number of patterns in the tree.
func (t *RuleTree) Len() int {
	n := 0
	walk(t, func(Pattern) { n++ })
	return n
}

// walk visits every pattern, labels in sorted order.
func walk(tree *RuleTree, fn func(Pattern)) {
	if tree == nil {
		return
	}
	if tree.Leaf != nil {
		for _, p := range tree.Leaf.Patterns {
			fn(p)
		}
		return
	}
	labels := make([]string, 0, len(tree.Children))
	for label := range tree.Children {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		walk(tree.Children[label], fn)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func join(path, label string) string {
	if path == "" {
		return label
	}
	return path + "." + label
}
