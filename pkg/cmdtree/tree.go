// Package cmdtree defines the erctl command tree used for tab completion,
// '?' help and command help text.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/psaab/erconf/pkg/config"
)

// Node defines a completion tree node with description, children, and optional dynamic values.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(cfg *config.Config) []string
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// sectionNames lists the top-level sections of cfg.
func sectionNames(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	return cfg.Keys()
}

// OperationalTree is the erctl command tree.
var OperationalTree = map[string]*Node{
	"show": {Desc: "Show information", Children: map[string]*Node{
		"configuration": {Desc: "Show an archived configuration [n] [section ...]", DynamicFn: sectionNames},
		"compare":       {Desc: "Compare archived configurations [n [m]] [unified]"},
		"history":       {Desc: "Show archived configuration snapshots"},
		"load-balance":  {Desc: "Show WAN load-balance status"},
		"events":        {Desc: "Show recent scraper events [n]"},
	}},
	"help": {Desc: "Show help"},
	"exit": {Desc: "Exit the shell"},
	"quit": {Desc: "Exit the shell"},
}

// PipeFilters are the output filters accepted after '|'.
var PipeFilters = map[string]string{
	"count":  "Count occurrences",
	"except": "Show only text that does not match a pattern",
	"last":   "Display end of output only",
	"match":  "Show only text that matches a pattern",
}

// KeysOf returns the sorted keys of m.
func KeysOf(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterPrefix returns the items that start with prefix.
func FilterPrefix(items []string, prefix string) []string {
	var out []string
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

// Complete walks the tree along words and returns the candidates for
// partial, with descriptions. Dynamic values come from cfg.
func Complete(tree map[string]*Node, words []string, partial string, cfg *config.Config) []Candidate {
	current := tree
	var currentNode *Node
	for _, w := range words {
		node, ok := current[w]
		if !ok {
			// Dynamic value: stay at the same level.
			if currentNode != nil && currentNode.DynamicFn != nil {
				continue
			}
			return nil
		}
		currentNode = node
		if node.Children == nil {
			current = nil
			continue
		}
		current = node.Children
	}

	var candidates []Candidate
	for _, name := range FilterPrefix(KeysOf(current), partial) {
		candidates = append(candidates, Candidate{Name: name, Desc: current[name].Desc})
	}
	if currentNode != nil && currentNode.DynamicFn != nil && cfg != nil {
		for _, name := range FilterPrefix(currentNode.DynamicFn(cfg), partial) {
			candidates = append(candidates, Candidate{Name: name, Desc: "(configured)"})
		}
	}
	return candidates
}

// CompletePipe returns pipe filter candidates for the text after the last
// '|'. handled is false when text contains no pipe.
func CompletePipe(text string) (candidates []Candidate, handled bool) {
	idx := strings.LastIndex(text, "|")
	if idx < 0 {
		return nil, false
	}
	after := strings.TrimLeft(text[idx+1:], " ")
	if strings.Contains(after, " ") {
		// Filter name complete; the argument is free-form.
		return nil, true
	}
	for name, desc := range PipeFilters {
		if strings.HasPrefix(name, after) {
			candidates = append(candidates, Candidate{Name: name, Desc: desc})
		}
	}
	return candidates, true
}

// WriteHelp prints aligned completion candidates to w in a single write.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
