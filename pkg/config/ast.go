package config

import (
	"fmt"
	"sort"
	"strings"
)

// indentStep is the per-level indentation used when re-rendering the tree.
const indentStep = "    "

// Kind identifies which variant a Node is.
type Kind int

const (
	KindEntries Kind = iota
	KindSection
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindEntries:
		return "entries"
	case KindSection:
		return "section"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Node is a node of the configuration tree. The set of implementations is
// closed: *Entries, *Section and *Config.
type Node interface {
	Kind() Kind
	Name() string
	// Keys returns the keys addressing this node's children, in diff order.
	Keys() []string
	// Render returns the node as text lines, each starting with prefix.
	Render(prefix string) []string

	node()
}

// Entry is a single "key value" or bare "key" line.
type Entry struct {
	Key   string
	Value string
	Bare  bool
}

// NewEntry returns an Entry carrying a value.
func NewEntry(key, value string) Entry {
	return Entry{Key: key, Value: value}
}

// NewBareEntry returns a keyword-only Entry.
func NewBareEntry(key string) Entry {
	return Entry{Key: key, Bare: true}
}

// Render returns the entry as a single line.
func (e Entry) Render(prefix string) string {
	if e.Bare {
		return prefix + e.Key
	}
	return prefix + e.Key + " " + e.Value
}

func (e Entry) String() string {
	return e.Render("")
}

// Entries groups every Entry sharing one key under a section.
type Entries struct {
	name     string
	indent   string
	sortable bool
	entries  []Entry
}

func newEntries(indent string, sortable bool, e Entry) *Entries {
	return &Entries{
		name:     e.Key,
		indent:   indent,
		sortable: sortable,
		entries:  []Entry{e},
	}
}

func (g *Entries) add(e Entry) error {
	if e.Key != g.name {
		return fmt.Errorf("%w: entry %q added to group %q", ErrInternal, e.Key, g.name)
	}
	g.entries = append(g.entries, e)
	if g.sortable {
		sort.SliceStable(g.entries, func(i, j int) bool {
			return g.entries[i].String() < g.entries[j].String()
		})
	}
	return nil
}

func (g *Entries) node() {}

// Kind implements Node.
func (g *Entries) Kind() Kind { return KindEntries }

// Name returns the key shared by all members.
func (g *Entries) Name() string { return g.name }

// Indent returns the indentation the members are rendered with.
func (g *Entries) Indent() string { return g.indent }

// Sortable reports whether the group is kept sorted.
func (g *Entries) Sortable() bool { return g.sortable }

// Len returns the number of members.
func (g *Entries) Len() int { return len(g.entries) }

// Entries returns the members in their current order.
func (g *Entries) Entries() []Entry {
	return append([]Entry(nil), g.entries...)
}

// Keys returns the member values in their current order.
func (g *Entries) Keys() []string {
	keys := make([]string, len(g.entries))
	for i, e := range g.entries {
		keys[i] = e.Value
	}
	return keys
}

// Get returns the first member whose value is value.
func (g *Entries) Get(value string) (Entry, error) {
	for _, e := range g.entries {
		if e.Value == value {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s %q", ErrUnknownKey, g.name, value)
}

// Render implements Node.
func (g *Entries) Render(prefix string) []string {
	lines := make([]string, len(g.entries))
	for i, e := range g.entries {
		lines[i] = e.Render(prefix)
	}
	return lines
}

// Section is a named block containing entry groups and subsections.
type Section struct {
	name     string
	indent   string
	entries  map[string]*Entries
	sections map[string]*Section
}

// NewSection creates an empty section. indent is the whitespace the
// section's opening line was written with.
func NewSection(indent, name string) *Section {
	return &Section{
		name:     name,
		indent:   indent,
		entries:  make(map[string]*Entries),
		sections: make(map[string]*Section),
	}
}

func (s *Section) node() {}

// Kind implements Node.
func (s *Section) Kind() Kind { return KindSection }

// Name returns the section name, e.g. "ethernet eth0".
func (s *Section) Name() string { return s.name }

// Indent returns the indentation of the section's opening line.
func (s *Section) Indent() string { return s.indent }

// AddEntry adds e to the group named e.Key, creating it on first use.
func (s *Section) AddEntry(e Entry, policy Policy) error {
	if g, ok := s.entries[e.Key]; ok {
		return g.add(e)
	}
	if _, ok := s.sections[e.Key]; ok {
		return fmt.Errorf("%w: %q is already a section in %q", ErrDuplicateDefinition, e.Key, s.name)
	}
	s.entries[e.Key] = newEntries(s.indent+indentStep, policy.Sortable(e.Key), e)
	return nil
}

// AddSection adds child as a subsection.
func (s *Section) AddSection(child *Section) error {
	if _, ok := s.sections[child.name]; ok {
		return fmt.Errorf("%w: section %q in %q", ErrDuplicateDefinition, child.name, s.name)
	}
	if _, ok := s.entries[child.name]; ok {
		return fmt.Errorf("%w: %q is already an entry in %q", ErrDuplicateDefinition, child.name, s.name)
	}
	s.sections[child.name] = child
	return nil
}

// Keys returns the names of all entry groups and subsections, sorted.
func (s *Section) Keys() []string {
	keys := make([]string, 0, len(s.entries)+len(s.sections))
	for k := range s.entries {
		keys = append(keys, k)
	}
	for k := range s.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the entry group or subsection named key.
func (s *Section) Get(key string) (Node, error) {
	if g, ok := s.entries[key]; ok {
		return g, nil
	}
	if sub, ok := s.sections[key]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("%w: %q in section %q", ErrUnknownKey, key, s.name)
}

// Section returns the subsection named name.
func (s *Section) Section(name string) (*Section, error) {
	if sub, ok := s.sections[name]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("%w: section %q in %q", ErrUnknownKey, name, s.name)
}

// Entries returns the entry group named key.
func (s *Section) Entries(key string) (*Entries, error) {
	if g, ok := s.entries[key]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: entry %q in %q", ErrUnknownKey, key, s.name)
}

// Render implements Node.
func (s *Section) Render(prefix string) []string {
	lines := []string{prefix + s.name + " {"}
	for _, k := range s.Keys() {
		child, _ := s.Get(k)
		lines = append(lines, child.Render(prefix+indentStep)...)
	}
	return append(lines, prefix+"}")
}

// Config is a parsed configuration document.
type Config struct {
	// Header holds the lines preceding the first section.
	Header []string
	// Footer holds the line that ended the body and everything after it.
	Footer []string

	sections map[string]*Section
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{sections: make(map[string]*Section)}
}

func (c *Config) node() {}

// Kind implements Node.
func (c *Config) Kind() Kind { return KindConfig }

// Name implements Node. The root has no name.
func (c *Config) Name() string { return "" }

// AddSection adds a top-level section.
func (c *Config) AddSection(s *Section) error {
	if _, ok := c.sections[s.name]; ok {
		return fmt.Errorf("%w: section %q", ErrDuplicateDefinition, s.name)
	}
	c.sections[s.name] = s
	return nil
}

// Keys returns the top-level section names, sorted.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.sections))
	for k := range c.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Section returns the top-level section named name.
func (c *Config) Section(name string) (*Section, error) {
	if s, ok := c.sections[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: section %q", ErrUnknownKey, name)
}

// Lookup walks a path of section names from the root and returns the
// addressed node. The last element may name an entry group.
func (c *Config) Lookup(path ...string) (Node, error) {
	if len(path) == 0 {
		return c, nil
	}
	s, err := c.Section(path[0])
	if err != nil {
		return nil, err
	}
	var n Node = s
	for _, name := range path[1:] {
		sec, ok := n.(*Section)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a section", ErrUnknownKey, n.Name())
		}
		if n, err = sec.Get(name); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Render implements Node. Header and footer lines are emitted verbatim
// after prefix.
func (c *Config) Render(prefix string) []string {
	var lines []string
	for _, h := range c.Header {
		lines = append(lines, prefix+h)
	}
	for _, k := range c.Keys() {
		lines = append(lines, c.sections[k].Render(prefix)...)
	}
	for _, f := range c.Footer {
		lines = append(lines, prefix+f)
	}
	return lines
}

// String returns the plain rendering with a trailing newline.
func (c *Config) String() string {
	lines := c.Render("")
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
