package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/psaab/erconf/pkg/cmdtree"
	"github.com/psaab/erconf/pkg/config"
)

// candidates returns help candidates for a tree level.
func candidates(tree map[string]*cmdtree.Node) []cmdtree.Candidate {
	out := make([]cmdtree.Candidate, 0, len(tree))
	for name, node := range tree {
		out = append(out, cmdtree.Candidate{Name: name, Desc: node.Desc})
	}
	return out
}

// latestConfig parses the latest snapshot for dynamic completion. Errors
// yield nil so completion degrades to static words.
func (c *CLI) latestConfig() *config.Config {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := c.backend.Snapshot(ctx, 0)
	if err != nil {
		return nil
	}
	cfg, err := config.Parse(text, c.policy)
	if err != nil {
		return nil
	}
	return cfg
}

// complete returns the candidates for text and the partial word they
// extend.
func (c *CLI) complete(text string) ([]cmdtree.Candidate, string) {
	trailingSpace := strings.HasSuffix(text, " ")
	if cands, handled := cmdtree.CompletePipe(text); handled {
		partial := ""
		if after := strings.TrimLeft(text[strings.LastIndex(text, "|")+1:], " "); !trailingSpace {
			partial = after
		}
		return cands, partial
	}

	words := strings.Fields(text)
	partial := ""
	if !trailingSpace && len(words) > 0 {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	var cfg *config.Config
	if len(words) >= 2 && words[0] == "show" && words[1] == "configuration" {
		cfg = c.latestConfig()
	}
	return cmdtree.Complete(cmdtree.OperationalTree, words, partial, cfg), partial
}

// completer implements readline.AutoCompleter.
type completer struct {
	cli *CLI
}

func (rc *completer) Do(line []rune, pos int) ([][]rune, int) {
	cands, partial := rc.cli.complete(string(line[:pos]))
	if len(cands) == 0 {
		return nil, 0
	}
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Name
	}
	sort.Strings(names)

	if len(names) == 1 {
		suffix := names[0][len(partial):]
		return [][]rune{[]rune(suffix + " ")}, len(partial)
	}

	// Multiple matches: show descriptions above prompt.
	cmdtree.WriteHelp(rc.cli.out, cands)
	suffix := cmdtree.CommonPrefix(names)[len(partial):]
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, len(partial)
}

// helpListener shows completions when '?' is typed, removing the '?'.
func (c *CLI) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}
	clean := make([]rune, 0, len(line)-1)
	clean = append(clean, line[:pos-1]...)
	clean = append(clean, line[pos:]...)

	cands, _ := c.complete(string(clean[:pos-1]))
	if len(cands) == 0 {
		fmt.Fprintln(c.out, "  (no help available)")
	} else {
		cmdtree.WriteHelp(c.out, cands)
	}
	return clean, pos - 1, true
}
