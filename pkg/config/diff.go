package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Marker is the one-character prefix of a diff line.
type Marker byte

const (
	Unchanged Marker = ' '
	Removed   Marker = '-'
	Added     Marker = '+'
)

func (m Marker) String() string {
	return string(m)
}

// DiffLine is one line of a structural diff. Text carries the line's own
// indentation.
type DiffLine struct {
	Mark Marker
	Text string
}

func (l DiffLine) String() string {
	return string(l.Mark) + l.Text
}

func marked(m Marker, lines []string) []DiffLine {
	out := make([]DiffLine, len(lines))
	for i, l := range lines {
		out[i] = DiffLine{Mark: m, Text: l}
	}
	return out
}

// Diff compares two nodes of the same kind.
func Diff(left, right Node) ([]DiffLine, error) {
	switch l := left.(type) {
	case *Entries:
		r, ok := right.(*Entries)
		if !ok {
			return nil, kindMismatch(left, right)
		}
		return l.Diff(r)
	case *Section:
		r, ok := right.(*Section)
		if !ok {
			return nil, kindMismatch(left, right)
		}
		return l.Diff(r)
	case *Config:
		r, ok := right.(*Config)
		if !ok {
			return nil, kindMismatch(left, right)
		}
		return l.Diff(r)
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInternal, left)
	}
}

func kindMismatch(left, right Node) error {
	return fmt.Errorf("%w: %q is a %s on the left and a %s on the right",
		ErrInternal, left.Name(), left.Kind(), right.Kind())
}

// Diff compares two groups of the same key. Sortable groups are compared as
// sets of values; order-significant groups are aligned on their longest
// common subsequence so a reordering shows up as a removal and an addition.
func (g *Entries) Diff(right *Entries) ([]DiffLine, error) {
	if g.name != right.name {
		return nil, fmt.Errorf("%w: comparing entries %q with %q", ErrInternal, g.name, right.name)
	}
	if !g.sortable || !right.sortable {
		return g.diffOrdered(right), nil
	}

	inLeft := make(map[string]bool, len(g.entries))
	for _, e := range g.entries {
		inLeft[e.Value] = true
	}
	inRight := make(map[string]bool, len(right.entries))
	for _, e := range right.entries {
		inRight[e.Value] = true
	}

	var out []DiffLine
	for _, v := range union(g.Keys(), right.Keys()) {
		switch {
		case !inRight[v]:
			e, _ := g.Get(v)
			out = append(out, DiffLine{Removed, e.Render(g.indent)})
		case !inLeft[v]:
			e, _ := right.Get(v)
			out = append(out, DiffLine{Added, e.Render(right.indent)})
		default:
			l, _ := g.Get(v)
			r, _ := right.Get(v)
			if l.String() != r.String() {
				return nil, fmt.Errorf("%w: %q renders as %q and %q", ErrInternal, g.name, l, r)
			}
			out = append(out, DiffLine{Unchanged, l.Render(g.indent)})
		}
	}
	return out, nil
}

// diffOrdered aligns the members of both groups on a longest common
// subsequence of their indent-free lines. Where two alignments are equally
// long, the smaller line is the one given up, so diffing right against left
// yields the same lines with the markers swapped. Within each changed run
// removals precede additions; unchanged and removed lines use the left
// indent, added lines the right.
func (g *Entries) diffOrdered(right *Entries) []DiffLine {
	a, b := g.Render(""), right.Render("")
	left, added := g.Render(g.indent), right.Render(right.indent)

	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var out, removed, inserted []DiffLine
	flush := func() {
		out = append(append(out, removed...), inserted...)
		removed, inserted = nil, nil
	}
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			flush()
			out = append(out, DiffLine{Unchanged, left[i]})
			i++
			j++
		case j == len(b),
			i < len(a) && lcs[i+1][j] > lcs[i][j+1],
			i < len(a) && lcs[i+1][j] == lcs[i][j+1] && a[i] < b[j]:
			removed = append(removed, DiffLine{Removed, left[i]})
			i++
		default:
			inserted = append(inserted, DiffLine{Added, added[j]})
			j++
		}
	}
	flush()
	return out
}

// Diff compares two sections of the same name. Children present on one side
// only are shown whole; children present on both sides are compared
// recursively.
func (s *Section) Diff(right *Section) ([]DiffLine, error) {
	if s.name != right.name {
		return nil, fmt.Errorf("%w: comparing section %q with %q", ErrInternal, s.name, right.name)
	}

	out := []DiffLine{{Unchanged, s.indent + s.name + " {"}}
	for _, k := range union(s.Keys(), right.Keys()) {
		l, lerr := s.Get(k)
		r, rerr := right.Get(k)
		switch {
		case rerr != nil:
			out = append(out, marked(Removed, l.Render(s.indent+indentStep))...)
		case lerr != nil:
			out = append(out, marked(Added, r.Render(right.indent+indentStep))...)
		default:
			lines, err := Diff(l, r)
			if err != nil {
				return nil, err
			}
			out = append(out, lines...)
		}
	}
	return append(out, DiffLine{Unchanged, s.indent + "}"}), nil
}

// Diff compares two documents: header, top-level sections, then footer.
// Header and footer are compared as whole blocks.
func (c *Config) Diff(right *Config) ([]DiffLine, error) {
	out := diffLiteral(c.Header, right.Header)
	for _, k := range union(c.Keys(), right.Keys()) {
		l, lok := c.sections[k]
		r, rok := right.sections[k]
		switch {
		case !rok:
			out = append(out, marked(Removed, l.Render(""))...)
		case !lok:
			out = append(out, marked(Added, r.Render(""))...)
		default:
			lines, err := l.Diff(r)
			if err != nil {
				return nil, err
			}
			out = append(out, lines...)
		}
	}
	return append(out, diffLiteral(c.Footer, right.Footer)...), nil
}

func diffLiteral(left, right []string) []DiffLine {
	if equalLines(left, right) {
		return marked(Unchanged, left)
	}
	return append(marked(Removed, left), marked(Added, right)...)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// union returns the sorted, de-duplicated union of a and b.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// DiffStats counts the lines of a diff by marker.
type DiffStats struct {
	Added     int
	Removed   int
	Unchanged int
}

// Changed reports whether the diff contains any addition or removal.
func (s DiffStats) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

func (s DiffStats) String() string {
	return fmt.Sprintf("+%d -%d", s.Added, s.Removed)
}

// Summarize counts the lines of a diff.
func Summarize(lines []DiffLine) DiffStats {
	var s DiffStats
	for _, l := range lines {
		switch l.Mark {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		default:
			s.Unchanged++
		}
	}
	return s
}

// FormatDiff renders diff lines as newline-terminated text.
func FormatDiff(lines []DiffLine) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// UnifiedDiff returns a classic line-based unified diff of the plain
// renderings of left and right, with context lines of context.
func UnifiedDiff(left, right *Config, leftName, rightName string, context int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(left.String()),
		B:        difflib.SplitLines(right.String()),
		FromFile: leftName,
		ToFile:   rightName,
		Context:  context,
	})
}

// DiffText parses left and right with policy and returns their diff.
func DiffText(left, right string, policy Policy) ([]DiffLine, error) {
	l, err := Parse(left, policy)
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	r, err := Parse(right, policy)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	return l.Diff(r)
}
